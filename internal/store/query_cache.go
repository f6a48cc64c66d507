package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"todo-cli/internal/model"
	"todo-cli/internal/query"
)

// QueryCache is a query.Cache backed by the query_cache table so list results
// survive across CLI invocations.
type QueryCache struct {
	Store Store
}

var _ query.Cache = QueryCache{}

func (c QueryCache) Get(ctx context.Context, key string) (query.Entry, bool, error) {
	db, err := c.Store.openSQLite(ctx)
	if err != nil {
		return query.Entry{}, false, err
	}
	defer db.Close()

	var raw string
	var fetchedMs int64
	err = db.QueryRowContext(ctx, `SELECT json, fetched_at_unixms FROM query_cache WHERE k = ?`, key).Scan(&raw, &fetchedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return query.Entry{}, false, nil
	}
	if err != nil {
		return query.Entry{}, false, err
	}
	var data model.TodosResponse
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		// Unreadable rows behave like a miss and get overwritten on the next fetch.
		return query.Entry{}, false, nil
	}
	return query.Entry{Data: data, FetchedAt: time.UnixMilli(fetchedMs).UTC()}, true, nil
}

func (c QueryCache) Put(ctx context.Context, key, tag string, e query.Entry) error {
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}
	db, err := c.Store.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.ExecContext(ctx,
		`INSERT OR REPLACE INTO query_cache(k, tag, json, fetched_at_unixms) VALUES(?, ?, ?, ?)`,
		key, tag, string(raw), e.FetchedAt.UTC().UnixMilli(),
	)
	return err
}

func (c QueryCache) InvalidateTag(ctx context.Context, tag string) error {
	db, err := c.Store.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.ExecContext(ctx, `DELETE FROM query_cache WHERE tag = ?`, tag)
	return err
}

func (c QueryCache) Clear(ctx context.Context) error {
	db, err := c.Store.openSQLite(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.ExecContext(ctx, `DELETE FROM query_cache`)
	return err
}
