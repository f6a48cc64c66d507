// Package session holds the authenticated identity of the client and the
// startup verification that reconciles it with the remote service.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"todo-cli/internal/model"
)

// Snapshot is an immutable view of the session.
type Snapshot struct {
	User  *model.User
	Token string
}

func (s Snapshot) IsAuthenticated() bool {
	return strings.TrimSpace(s.Token) != ""
}

func (s Snapshot) IsAdmin() bool {
	return s.IsAuthenticated() && s.User.IsAdmin()
}

// Persister stores the session durably.
type Persister interface {
	LoadSession(ctx context.Context) (*model.User, string, error)
	SaveSession(ctx context.Context, user *model.User, token string) error
	ClearSession(ctx context.Context) error
}

// Store is the single owner of the current user and token. Only SetAuth and
// Logout mutate it; every mutation is persisted and then announced to
// subscribers.
type Store struct {
	mu      sync.Mutex
	user    *model.User
	token   string
	persist Persister
	log     *slog.Logger

	subs    map[int]func(Snapshot)
	nextSub int
}

// Open hydrates a Store from p.
func Open(ctx context.Context, p Persister, log *slog.Logger) (*Store, error) {
	if p == nil {
		return nil, errors.New("session: nil persister")
	}
	if log == nil {
		log = slog.Default()
	}
	user, token, err := p.LoadSession(ctx)
	if err != nil {
		return nil, err
	}
	return &Store{
		user:    cloneUser(user),
		token:   token,
		persist: p,
		log:     log,
		subs:    map[int]func(Snapshot){},
	}, nil
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{User: cloneUser(s.user), Token: s.token}
}

func (s *Store) IsAuthenticated() bool {
	return s.Snapshot().IsAuthenticated()
}

// Token implements api.TokenSource.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetAuth installs user and token together.
func (s *Store) SetAuth(ctx context.Context, user model.User, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("session: empty token")
	}
	u := user
	if err := s.persist.SaveSession(ctx, &u, token); err != nil {
		return err
	}
	s.mu.Lock()
	s.user = &u
	s.token = token
	snap := Snapshot{User: cloneUser(s.user), Token: s.token}
	subs := s.subscribersLocked()
	s.mu.Unlock()

	s.log.Debug("session set", slog.String("user_id", u.ID), slog.String("role", string(u.Role)))
	notify(subs, snap)
	return nil
}

// Logout clears user and token together. The in-memory session is cleared
// even if persistence fails.
func (s *Store) Logout(ctx context.Context) error {
	err := s.persist.ClearSession(ctx)

	s.mu.Lock()
	s.user = nil
	s.token = ""
	subs := s.subscribersLocked()
	s.mu.Unlock()

	s.log.Debug("session cleared")
	notify(subs, Snapshot{})
	return err
}

// Subscribe registers fn to receive a snapshot after every change. The
// returned func removes the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) subscribersLocked() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(s.subs))
	for i := 0; i < s.nextSub; i++ {
		if fn, ok := s.subs[i]; ok {
			out = append(out, fn)
		}
	}
	return out
}

func notify(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}

func cloneUser(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// MemoryPersister keeps the session in memory; useful for tests and
// throwaway sessions.
type MemoryPersister struct {
	mu    sync.Mutex
	User  *model.User
	Value string
}

func (m *MemoryPersister) LoadSession(context.Context) (*model.User, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneUser(m.User), m.Value, nil
}

func (m *MemoryPersister) SaveSession(_ context.Context, user *model.User, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.User = cloneUser(user)
	m.Value = token
	return nil
}

func (m *MemoryPersister) ClearSession(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.User = nil
	m.Value = ""
	return nil
}
