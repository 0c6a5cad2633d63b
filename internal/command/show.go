// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/pretty"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/staranto/cachekit/internal/cache"
	"github.com/staranto/cachekit/internal/jsonfile"
	"github.com/staranto/cachekit/internal/kiterr"
	"github.com/staranto/cachekit/internal/meta"
)

// ShowCommandAction prints a cache document, or the value at --path within it.
func ShowCommandAction(ctx context.Context, cmd *cli.Command) error {
	name := cmd.Args().First()
	if err := cache.ValidName(name); err != nil {
		return err
	}

	store, err := NewStore(cmd)
	if err != nil {
		return err
	}
	dir, err := store.CacheDir()
	if err != nil {
		return err
	}

	p := filepath.Join(dir, name+".json")
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		return kiterr.NotFound("command.show", name)
	}

	doc := jsonfile.New(p, false)
	if err := doc.Load(); err != nil {
		return err
	}

	raw, err := doc.Bytes()
	if err != nil {
		return err
	}
	if path := cmd.String("path"); path != "" {
		res, err := doc.Get(path)
		if err != nil {
			return err
		}
		if !res.Exists() {
			return fmt.Errorf("%s: path %q not found", name, path)
		}
		raw = []byte(res.Raw)
	}

	if cmd.Bool("pretty") {
		raw = pretty.Pretty(raw)
		if f, ok := stdout(cmd).(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			raw = pretty.Color(raw, nil)
		}
	} else {
		raw = append(pretty.Ugly(raw), '\n')
	}

	_, err = stdout(cmd).Write(raw)
	return err
}

// ShowCommandBuilder constructs the cli.Command definition for the "show"
// command.
func ShowCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "show",
		Usage:     "print a cache document",
		UsageText: `cachekit show NAME [--path gjson-path] [--pretty]`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "path",
				Aliases: []string{"p"},
				Usage:   "gjson path within the document, e.g. data.temp",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "indent the output",
			},
		},
		Action: ShowCommandAction,
		Meta:   meta,
	}).Build()
}
