// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package storage resolves the per-application storage root and owns the
// directory lifecycle beneath it: ensure, path resolution and uninstall.
package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/apex/log"

	"github.com/staranto/cachekit/internal/kiterr"
)

// CacheSubdir is the directory under the app root holding cache documents.
const CacheSubdir = "cache"

// Dir resolves the base storage directory.
// Precedence:
//  1. CACHEKIT_ROOT, if set and non-empty
//  2. os.UserCacheDir()/cachekit
//
// Returns ("", false) if a base cannot be resolved.
func Dir() (string, bool) {
	if c, ok := os.LookupEnv("CACHEKIT_ROOT"); ok && c != "" {
		return c, true
	}
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "cachekit"), true
	}
	return "", false
}

// Manager maps an application identity onto <base>/<app>.
type Manager struct {
	base  string
	app   string
	title string
}

// New returns a Manager rooted at base. An empty base falls back to Dir().
// app may be empty and set later with SetApp; until then every path lookup
// fails with a configuration error.
func New(base, app, title string) *Manager {
	if base == "" {
		base, _ = Dir()
	}
	m := &Manager{base: base}
	m.SetApp(app, title)
	return m
}

// SetApp sets the owning application identity.
func (m *Manager) SetApp(app, title string) {
	m.app = app
	m.title = title
	if m.title == "" {
		m.title = app
	}
}

// App returns the application name.
func (m *Manager) App() string { return m.app }

// Title returns the application title.
func (m *Manager) Title() string { return m.title }

// Base returns the base directory shared by all applications.
func (m *Manager) Base() string { return m.base }

// CheckApp fails with a configuration error until an application identity
// is established.
func (m *Manager) CheckApp() error {
	if m.base == "" {
		return kiterr.Configuration("storage.base", "storage base directory cannot be resolved")
	}
	if m.app == "" {
		return kiterr.Configuration("storage.app", "app must be defined")
	}
	if strings.ContainsAny(m.app, `/\`) || m.app == "." || m.app == ".." {
		return kiterr.Configuration("storage.app", fmt.Sprintf("invalid app name %q", m.app))
	}
	return nil
}

// Path returns a path beneath the application root.
func (m *Manager) Path(elem ...string) (string, error) {
	if err := m.CheckApp(); err != nil {
		return "", err
	}
	return filepath.Join(append([]string{m.base, m.app}, elem...)...), nil
}

// CacheDir returns the cache document directory.
func (m *Manager) CacheDir() (string, error) {
	return m.Path(CacheSubdir)
}

// Ensure creates the application root and the given subdirectory.
func (m *Manager) Ensure(elem ...string) (string, error) {
	p, err := m.Path(elem...)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p, 0o755); err != nil { //nolint:mnd
		return p, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return p, nil
}

// Uninstall removes the application root. When the base directory is left
// empty it is removed too. It returns the removed paths, deepest first.
func (m *Manager) Uninstall() ([]string, error) {
	root, err := m.Path()
	if err != nil {
		return nil, err
	}

	var removed []string
	if _, err := os.Stat(root); err == nil {
		if err := filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			removed = append(removed, path)
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
		if err := os.RemoveAll(root); err != nil {
			return nil, fmt.Errorf("failed to remove %s: %w", root, err)
		}
		sort.Sort(sort.Reverse(sort.StringSlice(removed)))
		for _, p := range removed {
			log.Debugf("removed %s", p)
		}
	}

	if entries, err := os.ReadDir(m.base); err == nil && len(entries) == 0 {
		if err := os.Remove(m.base); err != nil {
			log.WithError(err).Warnf("failed to remove %s", m.base)
		} else {
			removed = append(removed, m.base)
		}
	}

	return removed, nil
}
