// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/staranto/cachekit/internal/filters"
	"github.com/staranto/cachekit/internal/meta"
	"github.com/staranto/cachekit/internal/output"
)

// lsRow is one listing row. Date is epoch millis so filters and sorting can
// compare it numerically.
type lsRow struct {
	Name  string   `json:"name"`
	State string   `json:"state"`
	Date  int64    `json:"date,omitempty"`
	Size  int64    `json:"size"`
	Tags  []string `json:"tags"`
	Path  string   `json:"path"`
}

var lsColumns = []filters.Column{
	{Key: "name", Path: "name"},
	{Key: "state", Path: "state"},
	{Key: "date", Path: "date"},
	{Key: "size", Path: "size"},
	{Key: "tags", Path: "tags"},
}

// LsCommandAction lists every document in the cache directory.
func LsCommandAction(ctx context.Context, cmd *cli.Command) error {
	rt, err := OpenRuntime(cmd, false)
	if err != nil {
		return err
	}
	defer rt.Close()

	infos, listErr := rt.Registry.List()

	rows := make([]lsRow, 0, len(infos))
	for _, info := range infos {
		row := lsRow{
			Name:  info.Name,
			State: "fresh",
			Size:  info.Size,
			Tags:  info.Tags,
			Path:  info.Path,
		}
		if info.Stale {
			row.State = "stale"
		} else {
			row.Date = info.Date.UnixMilli()
		}
		rows = append(rows, row)
	}

	raw, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode listing: %w", err)
	}

	columns := lsColumns
	if cmd.Bool("path") {
		columns = append(slices.Clone(columns), filters.Column{Key: "path", Path: "path"})
	}

	opts := outputOptions(cmd)
	opts.Formatters = map[string]func(any) string{
		"date": humanDate,
		"size": humanSize,
		"tags": joinTags,
	}
	if err := output.SliceDiceSpit(stdout(cmd), raw, columns, opts); err != nil {
		return err
	}

	// Corrupt documents are reported after the listing of the good ones.
	return listErr
}

func humanDate(v any) string {
	ms, ok := v.(float64)
	if !ok || ms == 0 {
		return "-"
	}
	return humanize.Time(time.UnixMilli(int64(ms)))
}

func humanSize(v any) string {
	n, ok := v.(float64)
	if !ok {
		return "-"
	}
	return humanize.Bytes(uint64(n))
}

func joinTags(v any) string {
	list, ok := v.([]interface{})
	if !ok || len(list) == 0 {
		return "-"
	}
	tags := make([]string, 0, len(list))
	for _, t := range list {
		tags = append(tags, output.InterfaceToString(t))
	}
	return strings.Join(tags, ",")
}

// LsCommandBuilder constructs the cli.Command definition for the "ls" command.
func LsCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "ls",
		Usage:     "list cache documents",
		UsageText: `cachekit ls [options]`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "path",
				Usage: "include the document path",
			},
		},
		Listing: true,
		Action:  LsCommandAction,
		Meta:    meta,
	}).Build()
}
