package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// TokenVerifier checks a token against the remote service.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (string, error)
}

type Outcome int

const (
	// Unauthenticated: nothing was persisted, no request was made.
	Unauthenticated Outcome = iota
	// Restored: the token verified and matched the held session.
	Restored
	// Cleared: verification failed or the held session did not match.
	Cleared
)

func (o Outcome) String() string {
	switch o {
	case Restored:
		return "restored"
	case Cleared:
		return "cleared"
	default:
		return "unauthenticated"
	}
}

type Result struct {
	Outcome Outcome
	// Err is the verification failure, if any. It is informational; the
	// session has already been cleared.
	Err error
}

// Verifier reconciles the persisted token with the remote service once per
// process. Guards must wait on Done before reading the session.
type Verifier struct {
	store  *Store
	disk   Persister
	remote TokenVerifier
	log    *slog.Logger

	once   sync.Once
	done   chan struct{}
	result Result
}

// NewVerifier reads the persisted token from disk, verifies it with remote and
// updates store accordingly.
func NewVerifier(store *Store, disk Persister, remote TokenVerifier, log *slog.Logger) *Verifier {
	if log == nil {
		log = slog.Default()
	}
	return &Verifier{
		store:  store,
		disk:   disk,
		remote: remote,
		log:    log,
		done:   make(chan struct{}),
	}
}

// Run performs the verification the first time it is called; later calls
// return the first result.
func (v *Verifier) Run(ctx context.Context) Result {
	v.once.Do(func() {
		v.result = v.verify(ctx)
		close(v.done)
	})
	<-v.done
	return v.result
}

// Done is closed once Run has completed.
func (v *Verifier) Done() <-chan struct{} {
	return v.done
}

// Result returns the outcome and whether verification has finished.
func (v *Verifier) Result() (Result, bool) {
	select {
	case <-v.done:
		return v.result, true
	default:
		return Result{}, false
	}
}

func (v *Verifier) verify(ctx context.Context) Result {
	_, token, err := v.disk.LoadSession(ctx)
	if err != nil {
		v.log.Warn("read persisted session", slog.Any("err", err))
		token = ""
	}
	token = strings.TrimSpace(token)
	if token == "" {
		if v.store.IsAuthenticated() {
			_ = v.store.Logout(ctx)
		}
		v.log.Debug("auth verify: no token")
		return Result{Outcome: Unauthenticated}
	}

	if _, err := v.remote.VerifyToken(ctx, token); err != nil {
		if lerr := v.store.Logout(ctx); lerr != nil {
			v.log.Warn("clear session", slog.Any("err", lerr))
		}
		v.log.Info("auth verify: rejected", slog.Any("err", err))
		return Result{Outcome: Cleared, Err: err}
	}

	// The verify endpoint does not return a profile, so only a session that
	// already holds a user for this exact token is kept.
	snap := v.store.Snapshot()
	if snap.User == nil || snap.Token != token {
		if lerr := v.store.Logout(ctx); lerr != nil {
			v.log.Warn("clear session", slog.Any("err", lerr))
		}
		v.log.Info("auth verify: no matching user, session cleared")
		return Result{Outcome: Cleared}
	}
	if err := v.store.SetAuth(ctx, *snap.User, token); err != nil {
		v.log.Warn("re-affirm session", slog.Any("err", err))
	}
	v.log.Info("auth verify: restored", slog.String("user_id", snap.User.ID))
	return Result{Outcome: Restored}
}
