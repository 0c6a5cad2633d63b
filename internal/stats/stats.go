// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package stats records cache events in a SQLite database so builds, hits
// and clears can be summarized per entry across processes.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	_ "modernc.org/sqlite"

	"github.com/staranto/cachekit/internal/cache"
	"github.com/staranto/cachekit/internal/events"
)

// File is the database name under the app root.
const File = "stats.db"

// Event kinds.
const (
	KindBuild = "build"
	KindUse   = "use"
	KindClear = "clear"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_events (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT    NOT NULL,
	name TEXT    NOT NULL,
	key  TEXT    NOT NULL DEFAULT '',
	at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS cache_events_name ON cache_events (name, at);
`

// Row summarizes the events of one entry.
type Row struct {
	Name     string    `json:"name" yaml:"name"`
	Builds   int64     `json:"builds" yaml:"builds"`
	Uses     int64     `json:"uses" yaml:"uses"`
	Clears   int64     `json:"clears" yaml:"clears"`
	LastSeen time.Time `json:"last_seen" yaml:"last_seen"`
}

// HitRate is uses over uses plus builds.
func (r Row) HitRate() float64 {
	total := r.Builds + r.Uses
	if total == 0 {
		return 0
	}
	return float64(r.Uses) / float64(total)
}

// Recorder persists cache events.
type Recorder struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Recorder, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("stats path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Recorder{db: db, now: time.Now}, nil
}

// Close releases the database.
func (r *Recorder) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// Record stores one event. A zero at means now.
func (r *Recorder) Record(ctx context.Context, kind, name, key string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("event name is required")
	}
	switch kind {
	case KindBuild, KindUse, KindClear:
	default:
		return fmt.Errorf("unknown event kind %q", kind)
	}
	if at.IsZero() {
		at = r.now()
	}

	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO cache_events (kind, name, key, at) VALUES (?, ?, ?, ?)`,
		kind, name, key, at.UnixMilli(),
	); err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// Attach subscribes the recorder to the cache topics on bus. Failures are
// logged; publishing never fails.
func (r *Recorder) Attach(bus *events.Bus) {
	record := func(kind, name, key string, at time.Time) {
		if err := r.Record(context.Background(), kind, name, key, at); err != nil {
			log.WithError(err).WithField("cache", name).Warn("stats not recorded")
		}
	}

	bus.Subscribe(cache.TopicBuild, func(ev events.Event) {
		if n, ok := ev.Payload.(cache.Notice); ok {
			record(KindBuild, n.Name, n.Key, ev.At)
		}
	})
	bus.Subscribe(cache.TopicUse, func(ev events.Event) {
		if n, ok := ev.Payload.(cache.Notice); ok {
			record(KindUse, n.Name, n.Key, ev.At)
		}
	})
	bus.Subscribe(cache.TopicCleared, func(ev events.Event) {
		if c, ok := ev.Payload.(cache.Cleared); ok {
			for _, name := range c.Names {
				record(KindClear, name, "", ev.At)
			}
		}
	})
}

// Summary returns one row per entry name, sorted by name.
func (r *Recorder) Summary(ctx context.Context) ([]Row, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT
	name,
	SUM(CASE WHEN kind = 'build' THEN 1 ELSE 0 END),
	SUM(CASE WHEN kind = 'use' THEN 1 ELSE 0 END),
	SUM(CASE WHEN kind = 'clear' THEN 1 ELSE 0 END),
	MAX(at)
FROM cache_events
GROUP BY name
ORDER BY name
`)
	if err != nil {
		return nil, fmt.Errorf("summarize events: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var row Row
		var last int64
		if err := rows.Scan(&row.Name, &row.Builds, &row.Uses, &row.Clears, &last); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		row.LastSeen = time.UnixMilli(last).UTC()
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary: %w", err)
	}
	return out, nil
}

// Prune deletes events older than before and reports how many went.
func (r *Recorder) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cache_events WHERE at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}
