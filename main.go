// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/apex/log"

	"github.com/staranto/cachekit/internal/command"
	"github.com/staranto/cachekit/internal/config"
	mylog "github.com/staranto/cachekit/internal/log"
)

var ctx = context.Background()

func main() {
	os.Exit(realMain())
}

func realMain() int {
	mylog.InitLogger("")

	args := os.Args

	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "No command specified.")
		args = append(args, "--help")
	} else {
		args = mangleArguments(args)
	}

	app, err := command.InitApp(ctx, args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	if err := app.Run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	return 0
}

// mangleArguments expands an argument set from the config file. "@name"
// anywhere after the subcommand inserts "<subcommand>.name" from the config
// in its place; without one, "<subcommand>.defaults" is inserted right after
// the subcommand. Arguments following "--" are never inspected.
func mangleArguments(args []string) []string {
	// Flags before the subcommand, such as --app, are not sets.
	cmdIdx := 1
	for cmdIdx < len(args) && strings.HasPrefix(args[cmdIdx], "-") {
		if args[cmdIdx] == "--help" || args[cmdIdx] == "-h" {
			return args
		}
		if !strings.Contains(args[cmdIdx], "=") && cmdIdx+1 < len(args) {
			cmdIdx++
		}
		cmdIdx++
	}
	if cmdIdx >= len(args) {
		return args
	}

	out := make([]string, 0, len(args))
	out = append(out, args[:cmdIdx+1]...)
	idx := len(out)
	set := "defaults"

	rest := args[cmdIdx+1:]
	for i, a := range rest {
		if a == "--" {
			out = append(out, rest[i:]...)
			break
		}
		if strings.HasPrefix(a, "@") && set == "defaults" {
			set = a[1:]
			idx = len(out)
			continue
		}
		out = append(out, a)
	}

	setArgs, _ := config.GetStringSlice(args[cmdIdx] + "." + set)
	var parts []string
	for _, arg := range setArgs {
		parts = append(parts, strings.Fields(arg)...)
	}
	out = append(out[:idx], append(parts, out[idx:]...)...)

	log.Debugf("idx=%d, set=%s, args=%v", idx, set, out)
	return out
}
