// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/tidwall/gjson"
	"github.com/urfave/cli/v3"

	"github.com/staranto/cachekit/internal/cache"
	"github.com/staranto/cachekit/internal/meta"
)

// execBuilder returns a builder that runs argv and captures its stdout. With
// asJSON the output must be a JSON document and is stored as such; otherwise
// it is stored as a string without its trailing newline. key, if any, is
// passed to the command as CACHEKIT_KEY.
func execBuilder(argv []string, asJSON bool) cache.KeyedBuilder {
	return func(ctx context.Context, key string) (any, error) {
		c := exec.CommandContext(ctx, argv[0], argv[1:]...)
		c.Stderr = os.Stderr
		c.Env = append(os.Environ(), "CACHEKIT_KEY="+key)

		out, err := c.Output()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", argv[0], err)
		}

		if !asJSON {
			return string(bytes.TrimRight(out, "\r\n")), nil
		}
		if !gjson.ValidBytes(out) {
			return nil, fmt.Errorf("%s: output is not valid JSON", argv[0])
		}
		return json.RawMessage(bytes.TrimSpace(out)), nil
	}
}

// RunCommandAction prints the cached output of a command, running it only
// when the entry is stale.
func RunCommandAction(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) > 1 && args[1] == "--" {
		args = append(args[:1:1], args[2:]...)
	}
	if len(args) < 2 {
		return errors.New("usage: cachekit run NAME [options] -- COMMAND [ARGS...]")
	}
	name, argv := args[0], args[1:]

	rt, err := OpenRuntime(cmd, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	var tags []string
	if cmd.IsSet("tag") {
		tags = cmd.StringSlice("tag")
	}

	build := execBuilder(argv, cmd.Bool("json"))

	var raw json.RawMessage
	if key := cmd.String("key"); key != "" {
		e, err := rt.Registry.RegisterKeyed(name, tags, build)
		if err != nil {
			return err
		}
		raw, err = e.GetKey(ctx, key)
		if err != nil {
			return err
		}
	} else {
		e, err := rt.Registry.Register(name, tags, func(ctx context.Context) (any, error) {
			return build(ctx, "")
		})
		if err != nil {
			return err
		}
		raw, err = e.Get(ctx)
		if err != nil {
			return err
		}
	}

	value := gjson.ParseBytes(raw)
	if value.Type == gjson.String {
		_, err = fmt.Fprintln(stdout(cmd), value.String())
	} else {
		_, err = fmt.Fprintln(stdout(cmd), string(raw))
	}
	return err
}

// RunCommandBuilder constructs the cli.Command definition for the "run"
// command.
func RunCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "run",
		Usage:     "memoize the output of a command",
		UsageText: `cachekit run NAME [--tag t]... [--json] [--key k] -- COMMAND [ARGS...]`,
		Flags: []cli.Flag{
			NewTagFlag("run", meta.Config.Source),
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "store the command output as JSON",
			},
			&cli.StringFlag{
				Name:    "key",
				Aliases: []string{"k"},
				Usage:   "cache the output per key; passed to the command as CACHEKIT_KEY",
				Validator: func(value string) error {
					return FlagValidators(value, JammedFlagValidator)
				},
			},
		},
		Action: RunCommandAction,
		Meta:   meta,
	}).Build()
}
