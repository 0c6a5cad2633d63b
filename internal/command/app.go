// Copyright © 2025 Steve Taranto staranto@gmail.com
// SPDX-License-Identifier: MIT
package command

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/staranto/cachekit/internal/config"
	"github.com/staranto/cachekit/internal/meta"
)

// Version is set at build time with -ldflags "-X ...command.Version=...".
var Version = "dev"

func InitApp(ctx context.Context, args []string) (*cli.Command, error) {
	// The arg[1] immediately following the binary (arg[0]) is the cachekit
	// subcommand and also represents the namespace key to be used when
	// retrieving config values. arg[1] could be -h/--help, so ignore it if it
	// appears to be a flag.
	var ns string
	if len(args) > 1 && !strings.HasPrefix(args[1], "-") {
		ns = args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Debug("no config file")
		config.Config = config.Type{}
	}
	config.SetNamespace(ns)

	env, err := config.LoadEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	meta := meta.Meta{
		Args:      args,
		Config:    cfg,
		Context:   ctx,
		Env:       env,
		Namespace: ns,
	}

	app := &cli.Command{
		Name:    "cachekit",
		Usage:   "disk-backed memoization cache",
		Version: Version,
		Flags:   NewAppFlags(cfg.Source),
		Metadata: map[string]any{
			"meta": meta,
		},
	}

	app.Commands = append(app.Commands,
		ClearCommandBuilder(app, meta),
		CompletionCommandBuilder(app, meta),
		LsCommandBuilder(app, meta),
		PullCommandBuilder(app, meta),
		PushCommandBuilder(app, meta),
		RunCommandBuilder(app, meta),
		ShowCommandBuilder(app, meta),
		StatsCommandBuilder(app, meta),
		UninstallCommandBuilder(app, meta),
		WatchCommandBuilder(app, meta),
	)

	// Make sure flags are sorted for the --help text.
	for _, cmd := range app.Commands {
		sort.Slice(cmd.Flags, func(i, j int) bool {
			return cmd.Flags[i].Names()[0] < cmd.Flags[j].Names()[0]
		})
	}

	return app, nil
}
