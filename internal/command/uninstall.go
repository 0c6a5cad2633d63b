// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/staranto/cachekit/internal/meta"
)

// confirm asks on the terminal. Without a terminal there is nobody to ask.
func confirm(cmd *cli.Command, question string) (bool, error) {
	in, ok := cmd.Root().Reader.(*os.File)
	if !ok || !term.IsTerminal(int(in.Fd())) {
		return false, errors.New("not a terminal; pass --yes to confirm")
	}

	fmt.Fprintf(cmd.Root().ErrWriter, "%s [y/N] ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

// UninstallCommandAction removes the application's storage tree.
func UninstallCommandAction(ctx context.Context, cmd *cli.Command) error {
	store, err := NewStore(cmd)
	if err != nil {
		return err
	}
	root, err := store.Path()
	if err != nil {
		return err
	}

	if !cmd.Bool("yes") {
		ok, err := confirm(cmd, fmt.Sprintf("Remove %s?", root))
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	removed, err := store.Uninstall()
	if err != nil {
		return err
	}
	w := stdout(cmd)
	for _, p := range removed {
		fmt.Fprintln(w, p)
	}
	return nil
}

// UninstallCommandBuilder constructs the cli.Command definition for the
// "uninstall" command.
func UninstallCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "uninstall",
		Usage:     "remove the application's cache storage",
		UsageText: `cachekit uninstall [--yes]`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "yes",
				Aliases: []string{"y"},
				Usage:   "do not ask for confirmation",
			},
		},
		Action: UninstallCommandAction,
		Meta:   meta,
	}).Build()
}
