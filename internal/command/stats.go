// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/staranto/cachekit/internal/filters"
	"github.com/staranto/cachekit/internal/meta"
	"github.com/staranto/cachekit/internal/output"
)

type statsRow struct {
	Name     string  `json:"name"`
	Builds   int64   `json:"builds"`
	Uses     int64   `json:"uses"`
	Clears   int64   `json:"clears"`
	HitRate  float64 `json:"hitrate"`
	LastSeen int64   `json:"lastseen"`
}

var statsColumns = []filters.Column{
	{Key: "name", Path: "name"},
	{Key: "builds", Path: "builds"},
	{Key: "uses", Path: "uses"},
	{Key: "clears", Path: "clears"},
	{Key: "hitrate", Path: "hitrate"},
	{Key: "lastseen", Path: "lastseen"},
}

// StatsCommandAction summarizes recorded builds, uses and clears per entry.
func StatsCommandAction(ctx context.Context, cmd *cli.Command) error {
	rt, err := OpenRuntime(cmd, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.Stats == nil {
		return fmt.Errorf("statistics are disabled or unavailable")
	}

	if days := cmd.Int("prune-days"); days > 0 {
		before := time.Now().AddDate(0, 0, -int(days))
		n, err := rt.Stats.Prune(ctx, before)
		if err != nil {
			return err
		}
		log.WithField("rows", n).Info("pruned")
	}

	summary, err := rt.Stats.Summary(ctx)
	if err != nil {
		return err
	}

	rows := make([]statsRow, 0, len(summary))
	for _, s := range summary {
		rows = append(rows, statsRow{
			Name:     s.Name,
			Builds:   s.Builds,
			Uses:     s.Uses,
			Clears:   s.Clears,
			HitRate:  s.HitRate(),
			LastSeen: s.LastSeen.UnixMilli(),
		})
	}

	raw, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode stats: %w", err)
	}

	opts := outputOptions(cmd)
	opts.Formatters = map[string]func(any) string{
		"builds": humanCount,
		"uses":   humanCount,
		"clears": humanCount,
		"hitrate": func(v any) string {
			f, _ := v.(float64)
			return humanize.FtoaWithDigits(f*100, 1) + "%"
		},
		"lastseen": humanDate,
	}
	return output.SliceDiceSpit(stdout(cmd), raw, statsColumns, opts)
}

func humanCount(v any) string {
	n, _ := v.(float64)
	return humanize.Comma(int64(n))
}

// StatsCommandBuilder constructs the cli.Command definition for the "stats"
// command.
func StatsCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "stats",
		Usage:     "summarize cache activity",
		UsageText: `cachekit stats [--prune-days n] [options]`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "prune-days",
				Usage: "first drop events older than n days",
				Validator: func(value int) error {
					return FlagValidators(value, NonNegativeValidator)
				},
			},
		},
		Listing: true,
		Action:  StatsCommandAction,
		Meta:    meta,
	}).Build()
}
