// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT

// Package meta holds the invocation-wide options shared by every cachekit
// command.
package meta

import (
	"context"

	"github.com/staranto/cachekit/internal/config"
)

// Meta are the meta-options that are available on all or most commands.
type Meta struct {
	Args    []string
	Config  config.Type
	Context context.Context
	Env     config.Env
	// Namespace is the config namespace, normally the subcommand name.
	Namespace string
}

// App returns the application name from the environment, falling back to
// the config file's "app" key.
func (m Meta) App() string {
	if m.Env.App != "" {
		return m.Env.App
	}
	if app, ok := m.Config.Data["app"].(string); ok {
		return app
	}
	return ""
}

// Root returns the storage base from the environment, falling back to the
// config file's "root" key. Empty means the default location.
func (m Meta) Root() string {
	if m.Env.Root != "" {
		return m.Env.Root
	}
	if root, ok := m.Config.Data["root"].(string); ok {
		return root
	}
	return ""
}
