// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/staranto/cachekit/internal/jsonfile"
	"github.com/staranto/cachekit/internal/kiterr"
)

// Builder computes the value of a plain entry. The result must be JSON
// encodable.
type Builder func(ctx context.Context) (any, error)

// KeyedBuilder computes one key of a keyed entry.
type KeyedBuilder func(ctx context.Context, key string) (any, error)

// DefaultKey is the key Get uses on a keyed entry.
const DefaultKey = "default"

// Event topics published on the registry's bus.
const (
	TopicBuild   = "cache:build"
	TopicUse     = "cache:use"
	TopicCleared = "cache:cleared"
	TopicClear   = "cache:clear"
)

// Notice is the payload of TopicBuild and TopicUse.
type Notice struct {
	Name string
	Key  string
	Tags []string
	Date time.Time
}

// Cleared is the payload of TopicCleared.
type Cleared struct {
	Query Query
	Names []string
}

// Entry is one named, tagged cache document.
type Entry struct {
	// mu guards the document and inflight. It is never held while a builder
	// runs or an event is published.
	mu       sync.Mutex
	inflight map[string]chan struct{}

	registry *Registry
	name     string
	tags     []string
	keyed    bool
	build    KeyedBuilder
	file     *jsonfile.File
}

// Name returns the entry name.
func (e *Entry) Name() string { return e.name }

// Tags returns a copy of the entry tags.
func (e *Entry) Tags() []string { return slices.Clone(e.tags) }

// Path returns the backing document path.
func (e *Entry) Path() string { return e.file.Path() }

// Keyed reports whether the entry was registered with RegisterKeyed.
func (e *Entry) Keyed() bool { return e.keyed }

// Date returns the last build time. ok is false while the entry is stale.
// A document that cannot be read is an error, never a stale entry.
func (e *Entry) Date() (date time.Time, ok bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.file.Get("date")
	if err != nil {
		return time.Time{}, false, err
	}
	if v.Type != gjson.Number {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(v.Int()), true, nil
}

// Get returns the cached value, building it first if the entry is stale.
// Builder errors are returned as is and leave the entry untouched.
func (e *Entry) Get(ctx context.Context) (json.RawMessage, error) {
	key := ""
	if e.keyed {
		key = DefaultKey
	}
	return e.get(ctx, key)
}

// GetKey returns the value stored under key in a keyed entry. On a plain
// entry only the empty key is accepted.
func (e *Entry) GetKey(ctx context.Context, key string) (json.RawMessage, error) {
	switch {
	case !e.keyed && key != "":
		return nil, kiterr.Invalid("cache.get.key", "entry is not keyed",
			map[string]any{"name": e.name, "key": key})
	case e.keyed && key == "":
		return nil, kiterr.Invalid("cache.get.key", "key must not be empty",
			map[string]any{"name": e.name})
	}
	return e.get(ctx, key)
}

// GetAs decodes the value of e into T.
func GetAs[T any](ctx context.Context, e *Entry) (T, error) {
	var v T
	raw, err := e.Get(ctx)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("failed to decode cache %s: %w", e.name, err)
	}
	return v, nil
}

func dataPath(key string) string {
	if key == "" {
		return "data"
	}
	return "data." + jsonfile.Escape(key)
}

func (e *Entry) get(ctx context.Context, key string) (json.RawMessage, error) {
	r := e.registry
	logger := r.log.WithField("cache", e.name)
	if key != "" {
		logger = logger.WithField("key", key)
	}

	for {
		e.mu.Lock()
		value, date, fresh, err := e.cached(key)
		if err != nil {
			e.mu.Unlock()
			return nil, err
		}
		if fresh {
			e.mu.Unlock()
			logger.Debug("hit")
			r.publish(TopicUse, e.notice(key, date))
			return value, nil
		}

		// Another caller is building this key; wait for it and look again.
		if wait, ok := e.inflight[key]; ok {
			e.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		done := make(chan struct{})
		if e.inflight == nil {
			e.inflight = make(map[string]chan struct{})
		}
		e.inflight[key] = done
		e.mu.Unlock()

		raw, built, err := e.rebuild(ctx, key, done)
		if err != nil {
			logger.WithError(err).Debug("build failed")
			return nil, err
		}
		r.publish(TopicBuild, e.notice(key, built))
		return raw, nil
	}
}

// cached reads the stored value of key. e.mu must be held.
func (e *Entry) cached(key string) (json.RawMessage, time.Time, bool, error) {
	date, err := e.file.Get("date")
	if err != nil {
		return nil, time.Time{}, false, err
	}
	value, err := e.file.Get(dataPath(key))
	if err != nil {
		return nil, time.Time{}, false, err
	}
	if date.Type != gjson.Number {
		return nil, time.Time{}, false, nil
	}
	if key != "" && (!value.Exists() || value.Type == gjson.Null) {
		return nil, time.Time{}, false, nil
	}
	return json.RawMessage(value.Raw), time.UnixMilli(date.Int()), true, nil
}

// rebuild runs the builder without holding e.mu, so the builder and event
// handlers may clear caches, and persists the result. done is closed once
// the result is stored or the build failed.
func (e *Entry) rebuild(ctx context.Context, key string, done chan struct{}) (json.RawMessage, time.Time, error) {
	r := e.registry
	defer func() {
		e.mu.Lock()
		delete(e.inflight, key)
		e.mu.Unlock()
		close(done)
	}()

	bctx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		bctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := e.build(bctx, key)
	if err != nil {
		return nil, time.Time{}, err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, time.Time{}, kiterr.Persistence("cache.get.encode", "builder result is not JSON encodable",
			e.file.Path(), nil, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := r.now()
	built := now
	if err := e.file.Update(func(d *jsonfile.Doc) error {
		if key == "" {
			if err := d.SetRaw("data", raw); err != nil {
				return err
			}
			return d.Set("date", now.UnixMilli())
		}

		// Keys accumulate until the next clear; the date records the first.
		prev := d.Get("date")
		if prev.Type != gjson.Number || !d.Get("data").IsObject() {
			if err := d.SetRaw("data", []byte("{}")); err != nil {
				return err
			}
		}
		if err := d.SetRaw(dataPath(key), raw); err != nil {
			return err
		}
		if prev.Type == gjson.Number {
			built = time.UnixMilli(prev.Int())
			return nil
		}
		return d.Set("date", now.UnixMilli())
	}); err != nil {
		return nil, time.Time{}, err
	}

	r.log.WithField("cache", e.name).WithField("elapsed", time.Since(start).String()).Debug("built")
	return json.RawMessage(raw), built, nil
}

// MarkStale clears date and data when q selects the entry. It reports
// whether the entry changed. An entry that is already stale is left alone.
func (e *Entry) MarkStale(q Query) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	date, err := e.file.Get("date")
	if err != nil {
		return false, err
	}
	if date.Type != gjson.Number {
		return false, nil
	}
	if !q.Matches(e.name, e.tags, date.Int(), true) {
		return false, nil
	}
	if err := e.file.Update(markStale); err != nil {
		return false, err
	}
	e.registry.log.WithField("cache", e.name).WithField("query", q.String()).Debug("staled")
	return true, nil
}

// Clear asks the registry to clear this entry by name.
func (e *Entry) Clear(ctx context.Context) ([]string, error) {
	return e.registry.Clear(ctx, ByName(e.name))
}

func (e *Entry) notice(key string, date time.Time) Notice {
	return Notice{Name: e.name, Key: key, Tags: e.Tags(), Date: date}
}

func markStale(d *jsonfile.Doc) error {
	if err := d.Set("date", nil); err != nil {
		return err
	}
	return d.Set("data", nil)
}
