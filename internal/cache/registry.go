// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/tidwall/gjson"

	"github.com/staranto/cachekit/internal/events"
	"github.com/staranto/cachekit/internal/jsonfile"
	"github.com/staranto/cachekit/internal/kiterr"
	"github.com/staranto/cachekit/internal/storage"
)

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithBuildTimeout bounds every builder call.
func WithBuildTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

// WithLogger replaces the package logger.
func WithLogger(l log.Interface) Option {
	return func(r *Registry) { r.log = l }
}

// Registry maps entry names to entries and routes clear requests.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	store   *storage.Manager
	bus     *events.Bus
	now     func() time.Time
	timeout time.Duration
	log     log.Interface
	origin  string
}

// NewRegistry returns an empty registry storing documents through store and
// publishing on bus. bus may be nil.
func NewRegistry(store *storage.Manager, bus *events.Bus, opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*Entry),
		store:   store,
		bus:     bus,
		now:     time.Now,
		log:     log.Log,
	}
	for _, o := range opts {
		o(r)
	}
	r.origin = fmt.Sprintf("%d-%d", os.Getpid(), time.Now().UnixNano())
	return r
}

// Store returns the storage manager.
func (r *Registry) Store() *storage.Manager { return r.store }

// Bus returns the event bus, possibly nil.
func (r *Registry) Bus() *events.Bus { return r.bus }

// ValidName rejects names that are not safe file stems.
func ValidName(name string) error {
	switch {
	case name == "":
		return kiterr.Invalid("cache.name", "name must not be empty", nil)
	case strings.ContainsAny(name, "/\\\x00"), strings.HasPrefix(name, "."):
		return kiterr.Invalid("cache.name", fmt.Sprintf("invalid name %q", name),
			map[string]any{"name": name})
	}
	return nil
}

// Register returns the entry called name, creating it on first use. Later
// registrations of the same name return the first entry unchanged.
func (r *Registry) Register(name string, tags []string, b Builder) (*Entry, error) {
	if b == nil {
		return nil, kiterr.Invalid("cache.register", "builder must not be nil", map[string]any{"name": name})
	}
	return r.register(name, tags, false, func(ctx context.Context, _ string) (any, error) {
		return b(ctx)
	})
}

// RegisterKeyed is Register for an entry holding one value per key.
func (r *Registry) RegisterKeyed(name string, tags []string, b KeyedBuilder) (*Entry, error) {
	if b == nil {
		return nil, kiterr.Invalid("cache.register", "builder must not be nil", map[string]any{"name": name})
	}
	return r.register(name, tags, true, b)
}

func (r *Registry) register(name string, tags []string, keyed bool, b KeyedBuilder) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[name]; ok {
		return e, nil
	}
	if err := ValidName(name); err != nil {
		return nil, err
	}
	dir, err := r.store.Ensure(storage.CacheSubdir)
	if err != nil {
		return nil, err
	}

	tags = slices.Clone(tags)
	if tags == nil {
		tags = []string{}
	}

	file := jsonfile.New(filepath.Join(dir, name+".json"), false)
	if err := file.Update(func(d *jsonfile.Doc) error {
		if err := d.Set("name", name); err != nil {
			return err
		}
		if err := d.Set("tags", tags); err != nil {
			return err
		}
		for _, k := range []string{"date", "data"} {
			if !d.Get(k).Exists() {
				if err := d.Set(k, nil); err != nil {
					return err
				}
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	e := &Entry{
		registry: r,
		name:     name,
		tags:     tags,
		keyed:    keyed,
		build:    b,
		file:     file,
	}
	r.entries[name] = e
	r.log.WithField("cache", name).WithField("tags", tags).Debug("registered")
	return e, nil
}

// Lookup returns the entry registered under name in this process.
func (r *Registry) Lookup(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[name]; ok {
		return e, nil
	}
	return nil, kiterr.NotFound("cache.lookup", name)
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clear stales every document selected by req and returns the names of
// those that changed. Documents that cannot be read are reported in the
// joined error; the sweep still visits the rest.
func (r *Registry) Clear(ctx context.Context, req Request) ([]string, error) {
	q := Resolve(req, r.now())
	names, err := r.sweep(ctx, q)
	r.log.WithField("query", q.String()).WithField("cleared", len(names)).Debug("clear")
	r.publish(TopicCleared, Cleared{Query: q, Names: names})
	return names, err
}

// Listen lets any subsystem request a clear by publishing a Request (or a
// bare name string) on TopicClear.
func (r *Registry) Listen(bus *events.Bus) {
	bus.Subscribe(TopicClear, func(ev events.Event) {
		var req Request
		switch p := ev.Payload.(type) {
		case Request:
			req = p
		case string:
			req = ParseRequest(p)
		case nil:
		default:
			r.log.Warnf("ignoring %s payload of type %T", TopicClear, ev.Payload)
			return
		}
		if _, err := r.Clear(context.Background(), req); err != nil {
			r.log.WithError(err).Warn("clear failed")
		}
	})
}

func (r *Registry) live(name string) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[name]
}

func (r *Registry) publish(topic string, payload any) {
	r.bus.Publish(topic, payload)
}

func stringsOf(v gjson.Result) []string {
	var out []string
	for _, t := range v.Array() {
		out = append(out, t.String())
	}
	return out
}
