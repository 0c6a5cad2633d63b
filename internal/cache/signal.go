// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/cespare/xxhash/v2"
	"github.com/fsnotify/fsnotify"

	"github.com/staranto/cachekit/internal/jsonfile"
)

// SignalFile is the name of the cross-process clear request under the app
// root.
const SignalFile = "clear.signal"

const signalDebounce = 50 * time.Millisecond

// signal is the content of SignalFile.
type signal struct {
	ID     string `json:"id"`
	Origin string `json:"origin"`
	PID    int    `json:"pid"`
	Query  Query  `json:"query"`
}

// Broadcast clears locally, then publishes the resolved query to other
// processes sharing the app root through SignalFile.
func (r *Registry) Broadcast(ctx context.Context, req Request) ([]string, error) {
	q := Resolve(req, r.now())
	names, err := r.Clear(ctx, q)
	if serr := r.writeSignal(q); serr != nil {
		err = errors.Join(err, serr)
	}
	return names, err
}

func (r *Registry) writeSignal(q Query) error {
	root, err := r.store.Ensure()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return err
	}

	f := jsonfile.New(filepath.Join(root, SignalFile), false)
	return f.Update(func(d *jsonfile.Doc) error {
		if err := d.Set("id", fmt.Sprintf("%s-%d", r.origin, r.now().UnixNano())); err != nil {
			return err
		}
		if err := d.Set("origin", r.origin); err != nil {
			return err
		}
		if err := d.Set("pid", os.Getpid()); err != nil {
			return err
		}
		return d.SetRaw("query", raw)
	})
}

// Watcher applies clear requests broadcast by other processes.
type Watcher struct {
	registry *Registry
	fsw      *fsnotify.Watcher
	path     string
	log      log.Interface

	pending chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once

	mu       sync.Mutex
	debounce *time.Timer
	last     uint64
}

// Watch starts a Watcher on the registry's app root. The current signal, if
// any, is treated as already applied.
func (r *Registry) Watch() (*Watcher, error) {
	root, err := r.store.Ensure()
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		registry: r,
		fsw:      fsw,
		path:     filepath.Join(root, SignalFile),
		log:      r.log.WithField("signal", SignalFile),
		pending:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if raw, err := os.ReadFile(w.path); err == nil {
		w.last = xxhash.Sum64(raw)
	}

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Create|fsnotify.Write) {
				continue
			}
			w.mu.Lock()
			if w.debounce != nil {
				w.debounce.Stop()
			}
			w.debounce = time.AfterFunc(signalDebounce, func() {
				select {
				case w.pending <- struct{}{}:
				default:
				}
			})
			w.mu.Unlock()
		case <-w.pending:
			w.apply()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Warn("watch error")
		}
	}
}

func (w *Watcher) apply() {
	raw, err := os.ReadFile(w.path)
	if err != nil {
		w.log.WithError(err).Debug("signal unreadable")
		return
	}
	sum := xxhash.Sum64(raw)
	if sum == w.last {
		return
	}
	w.last = sum

	var s signal
	if err := json.Unmarshal(raw, &s); err != nil {
		w.log.WithError(err).Warn("signal is not valid JSON")
		return
	}
	if s.Origin == w.registry.origin {
		return
	}

	names, err := w.registry.Clear(context.Background(), s.Query)
	entry := w.log.WithField("id", s.ID).WithField("pid", s.PID).WithField("cleared", len(names))
	if err != nil {
		entry.WithError(err).Warn("signal applied with errors")
		return
	}
	entry.Debug("signal applied")
}

// Close stops the watcher and waits for it to exit.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.stop)
		w.mu.Lock()
		if w.debounce != nil {
			w.debounce.Stop()
		}
		w.mu.Unlock()
		err = w.fsw.Close()
		<-w.done
	})
	return err
}
