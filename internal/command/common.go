// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/staranto/cachekit/internal/cache"
	"github.com/staranto/cachekit/internal/events"
	"github.com/staranto/cachekit/internal/meta"
	"github.com/staranto/cachekit/internal/stats"
	"github.com/staranto/cachekit/internal/storage"
)

// GetMeta returns the meta.Meta stored in the command's Metadata. If missing
// or of an unexpected type, it returns the zero value.
func GetMeta(cmd *cli.Command) meta.Meta {
	if cmd == nil || cmd.Metadata == nil {
		return meta.Meta{}
	}
	if m, ok := cmd.Metadata["meta"].(meta.Meta); ok {
		return m
	}
	return meta.Meta{}
}

// stdout is where command results go. Logs and warnings go to stderr.
func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return cmd.Writer
}

// CommandBuilder constructs a cli.Command for cachekit subcommands using a
// consistent pattern. Listing commands also get the filter, sort, output,
// titles and color flags.
type CommandBuilder struct {
	Name      string
	Usage     string
	UsageText string
	Flags     []cli.Flag
	Listing   bool
	Action    func(context.Context, *cli.Command) error
	Meta      meta.Meta
}

// Build returns a configured cli.Command from the builder.
func (cb *CommandBuilder) Build() *cli.Command {
	flags := cb.Flags
	if cb.Listing {
		flags = append(flags, NewGlobalFlags(cb.Name, cb.Meta.Config.Source)...)
	}
	return &cli.Command{
		Name:      cb.Name,
		Usage:     cb.Usage,
		UsageText: cb.UsageText,
		Metadata: map[string]any{
			"meta": cb.Meta,
		},
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			log.Debugf("Executing action for %v", c.FullName())
			return cb.Action(ctx, c)
		},
	}
}

// Runtime is the cache stack a command operates on.
type Runtime struct {
	Store    *storage.Manager
	Bus      *events.Bus
	Registry *cache.Registry
	// Stats is nil unless recording was requested and is enabled.
	Stats *stats.Recorder
}

// NewStore resolves the application identity from flags, env and config.
func NewStore(cmd *cli.Command) (*storage.Manager, error) {
	m := GetMeta(cmd)

	app := cmd.String("app")
	if app == "" {
		app = m.App()
	}
	root := cmd.String("root")
	if root == "" {
		root = m.Root()
	}

	store := storage.New(root, app, m.Env.Title)
	if err := store.CheckApp(); err != nil {
		return nil, fmt.Errorf("%w (use --app or CACHEKIT_APP)", err)
	}
	return store, nil
}

// OpenRuntime builds the cache stack for cmd. When record is set and stats
// are not disabled, cache events are recorded to the stats database.
func OpenRuntime(cmd *cli.Command, record bool) (*Runtime, error) {
	store, err := NewStore(cmd)
	if err != nil {
		return nil, err
	}
	m := GetMeta(cmd)

	bus := events.NewBus()
	bus.SubscribeAll(func(ev events.Event) {
		log.WithField("topic", ev.Topic).Debugf("%+v", ev.Payload)
	})

	opts := []cache.Option{cache.WithLogger(log.WithField("app", store.App()))}
	if m.Env.BuildTimeout > 0 {
		opts = append(opts, cache.WithBuildTimeout(m.Env.BuildTimeout))
	}

	rt := &Runtime{
		Store:    store,
		Bus:      bus,
		Registry: cache.NewRegistry(store, bus, opts...),
	}
	rt.Registry.Listen(bus)

	if record && !m.Env.NoStats {
		root, err := store.Ensure()
		if err != nil {
			return nil, err
		}
		rec, err := stats.Open(filepath.Join(root, stats.File))
		if err != nil {
			log.WithError(err).Warn("stats disabled")
		} else {
			rec.Attach(bus)
			rt.Stats = rec
		}
	}

	return rt, nil
}

// Close releases the stats database, if open.
func (rt *Runtime) Close() error {
	rt.Bus.Clear()
	if rt.Stats == nil {
		return nil
	}
	return rt.Stats.Close()
}
