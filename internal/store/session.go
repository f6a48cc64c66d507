package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"todo-cli/internal/model"
)

const (
	sessionKeyToken = "token"
	sessionKeyUser  = "user"
)

// SessionRepo persists the current user and token in the session table.
type SessionRepo struct {
	Store Store
}

// LoadSession returns the persisted user (nil when absent or unreadable) and token.
func (r SessionRepo) LoadSession(ctx context.Context) (*model.User, string, error) {
	db, err := r.Store.openSQLite(ctx)
	if err != nil {
		return nil, "", err
	}
	defer db.Close()

	read := func(k string) (string, error) {
		var v string
		err := db.QueryRowContext(ctx, `SELECT v FROM session WHERE k = ?`, k).Scan(&v)
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return v, err
	}

	token, err := read(sessionKeyToken)
	if err != nil {
		return nil, "", err
	}
	rawUser, err := read(sessionKeyUser)
	if err != nil {
		return nil, "", err
	}

	var user *model.User
	if strings.TrimSpace(rawUser) != "" {
		var u model.User
		// A corrupt user record is treated as missing; the verifier will clear the session.
		if json.Unmarshal([]byte(rawUser), &u) == nil && u.ID != "" {
			user = &u
		}
	}
	return user, strings.TrimSpace(token), nil
}

// SaveSession replaces the persisted session in one transaction.
func (r SessionRepo) SaveSession(ctx context.Context, user *model.User, token string) error {
	db, err := r.Store.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO session(k, v) VALUES(?, ?)`, sessionKeyToken, token); err != nil {
		return err
	}
	if user != nil {
		raw, err := json.Marshal(user)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO session(k, v) VALUES(?, ?)`, sessionKeyUser, string(raw)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r SessionRepo) ClearSession(ctx context.Context) error {
	db, err := r.Store.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.ExecContext(ctx, `DELETE FROM session`)
	return err
}
