// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/staranto/cachekit/internal/cache"
	"github.com/staranto/cachekit/internal/meta"
)

// clearRequest maps the clear arguments onto a cache request. With no
// arguments at all the request is the unscoped sweep.
func clearRequest(cmd *cli.Command) (cache.Request, error) {
	target := cmd.Args().First()
	if target != "" {
		if err := NameValidator(target); err != nil {
			return nil, err
		}
	}

	f := cache.Filter{
		Name:  target,
		Days:  int(cmd.Int("days")),
		Years: int(cmd.Int("years")),
	}
	if cmd.IsSet("tag") {
		f.Tags = cmd.StringSlice("tag")
	}
	if ms := cmd.Int("date"); ms > 0 {
		f.Date = time.UnixMilli(int64(ms))
	}

	if f.Tags == nil && f.Days == 0 && f.Years == 0 && f.Date.IsZero() {
		return cache.ParseRequest(target), nil
	}
	return f, nil
}

// ClearCommandAction stales every document selected by the arguments. With
// --broadcast, watchers in other processes apply the same clear.
func ClearCommandAction(ctx context.Context, cmd *cli.Command) error {
	req, err := clearRequest(cmd)
	if err != nil {
		return err
	}

	rt, err := OpenRuntime(cmd, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	var names []string
	if cmd.Bool("broadcast") {
		names, err = rt.Registry.Broadcast(ctx, req)
	} else {
		names, err = rt.Registry.Clear(ctx, req)
	}

	w := stdout(cmd)
	for _, n := range names {
		fmt.Fprintln(w, n)
	}
	return err
}

// ClearCommandBuilder constructs the cli.Command definition for the "clear"
// command.
func ClearCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "clear",
		Usage:     "invalidate cache entries",
		UsageText: `cachekit clear [all|NAME] [--tag t]... [--days n] [--years n] [--date ms] [--broadcast]`,
		Flags: []cli.Flag{
			NewTagFlag("clear", meta.Config.Source),
			&cli.IntFlag{
				Name:  "days",
				Usage: "only entries built more than n days ago",
				Validator: func(value int) error {
					return FlagValidators(value, NonNegativeValidator)
				},
			},
			&cli.IntFlag{
				Name:  "years",
				Usage: "only entries built more than n years ago",
				Validator: func(value int) error {
					return FlagValidators(value, NonNegativeValidator)
				},
			},
			&cli.IntFlag{
				Name:  "date",
				Usage: "only entries built before this epoch-millisecond cutoff",
			},
			&cli.BoolFlag{
				Name:    "broadcast",
				Aliases: []string{"B"},
				Usage:   "also signal watchers in other processes",
			},
		},
		Action: ClearCommandAction,
		Meta:   meta,
	}).Build()
}
