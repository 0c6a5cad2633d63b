// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	md2man "github.com/cpuguy83/go-md2man/v2/md2man"
	"github.com/urfave/cli/v3"

	"github.com/staranto/cachekit/internal/command"
)

// docgen walks the cachekit command tree and writes, per subcommand:
//   - docs/man/share/man1/cachekit-<cmd>.1 (md2man)
//   - docs/tldr/cachekit-<cmd>.md
//
// Names, synopses and options come from the cli.Command definitions.
// docs/commands/<cmd>.md only contributes the prose description and the
// Quick examples block.

const (
	binary   = "cachekit"
	homepage = "https://github.com/staranto/cachekit"
)

func main() {
	app := &cli.Command{
		Name:  "docgen",
		Usage: "render cachekit man and tldr pages from the command tree",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "root",
				Value: ".",
				Usage: "repo root",
			},
			&cli.BoolFlag{
				Name:  "check",
				Usage: "write nothing; fail when a page is out of date",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			tree, err := command.InitApp(ctx, []string{binary})
			if err != nil {
				return err
			}
			return generate(tree, c.String("root"), c.Bool("check"))
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// note is the hand-written part of a command page.
type note struct {
	Description string
	Examples    []example
}

type example struct {
	Desc string
	Cmd  string
}

func generate(tree *cli.Command, root string, check bool) error {
	notes, err := readNotes(filepath.Join(root, "docs", "commands"))
	if err != nil {
		return err
	}

	manDir := filepath.Join(root, "docs", "man", "share", "man1")
	tldrDir := filepath.Join(root, "docs", "tldr")
	if !check {
		for _, d := range []string{manDir, tldrDir} {
			if err := os.MkdirAll(d, 0o755); err != nil {
				return err
			}
		}
	}

	var stale []string
	for _, sub := range tree.Commands {
		if sub.Hidden || sub.Name == "help" {
			continue
		}
		n := notes[sub.Name]
		delete(notes, sub.Name)

		pages := map[string][]byte{
			filepath.Join(manDir, fmt.Sprintf("%s-%s.1", binary, sub.Name)):  md2man.Render([]byte(manPage(tree, sub, n))),
			filepath.Join(tldrDir, fmt.Sprintf("%s-%s.md", binary, sub.Name)): []byte(tldrPage(sub, n)),
		}
		for path, content := range pages {
			changed, err := syncFile(path, content, check)
			if err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			if changed && check {
				stale = append(stale, path)
			}
		}
	}

	if len(notes) > 0 {
		var orphans []string
		for name := range notes {
			orphans = append(orphans, name+".md")
		}
		slices.Sort(orphans)
		return fmt.Errorf("docs/commands has pages for unknown commands: %s", strings.Join(orphans, ", "))
	}
	if len(stale) > 0 {
		slices.Sort(stale)
		return fmt.Errorf("out of date: %s", strings.Join(stale, ", "))
	}
	return nil
}

// readNotes loads docs/commands/*.md keyed by command name. A missing
// directory yields no notes.
func readNotes(dir string) (map[string]note, error) {
	notes := map[string]note{}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return notes, nil
	}
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		notes[strings.TrimSuffix(e.Name(), ".md")] = parseNote(string(raw))
	}
	return notes, nil
}

// parseNote takes the first paragraph under "Short description" and the
// first fenced block under "Quick examples". In that block a "# text" line
// describes the command lines that follow it.
func parseNote(md string) note {
	var (
		n       note
		section string
		fenced  bool
		desc    string
		para    []string
	)

	sc := bufio.NewScanner(strings.NewReader(md))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())

		if strings.HasPrefix(line, "```") {
			fenced = !fenced
			if !fenced && section == "quick examples" {
				section = ""
			}
			continue
		}
		if fenced {
			if section != "quick examples" || line == "" {
				continue
			}
			if strings.HasPrefix(line, "#") {
				desc = strings.TrimSpace(strings.TrimLeft(line, "#"))
				continue
			}
			if desc == "" {
				desc = "Example"
			}
			n.Examples = append(n.Examples, example{Desc: desc, Cmd: line})
			desc = ""
			continue
		}

		if strings.HasPrefix(line, "#") {
			section = strings.ToLower(strings.TrimSpace(strings.TrimLeft(line, "#")))
			continue
		}
		if section == "short description" {
			if line == "" {
				if len(para) > 0 {
					section = ""
				}
				continue
			}
			para = append(para, line)
		}
	}
	n.Description = strings.Join(para, " ")
	return n
}

// Optional flag accessors; not every flag type implements them.
type (
	usager    interface{ GetUsage() string }
	envVarser interface{ GetEnvVars() []string }
	valuer    interface{ TakesValue() bool }
)

func flagNames(f cli.Flag) string {
	var names []string
	for _, n := range f.Names() {
		if len(n) == 1 {
			names = append(names, "-"+n)
			continue
		}
		names = append(names, "--"+n)
	}
	s := strings.Join(names, ", ")
	if v, ok := f.(valuer); ok && v.TakesValue() {
		s += " value"
	}
	return s
}

func writeOptions(b *strings.Builder, flags []cli.Flag) {
	sorted := slices.Clone(flags)
	slices.SortFunc(sorted, func(a, c cli.Flag) int { return strings.Compare(a.Names()[0], c.Names()[0]) })
	for _, f := range sorted {
		fmt.Fprintf(b, "**%s**\n", flagNames(f))
		var usage string
		if u, ok := f.(usager); ok {
			usage = u.GetUsage()
		}
		if e, ok := f.(envVarser); ok && len(e.GetEnvVars()) > 0 {
			usage = strings.TrimSpace(usage + " (env: " + strings.Join(e.GetEnvVars(), ", ") + ")")
		}
		if usage != "" {
			fmt.Fprintf(b, ": %s\n", usage)
		}
		b.WriteString("\n")
	}
}

func synopsis(sub *cli.Command) string {
	if sub.UsageText != "" {
		return sub.UsageText
	}
	return fmt.Sprintf("%s %s [options]", binary, sub.Name)
}

// manPage renders the md2man source for one subcommand.
func manPage(tree, sub *cli.Command, n note) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%% %s-%s 1\n\n", strings.ToUpper(binary), strings.ToUpper(sub.Name))

	b.WriteString("# NAME\n\n")
	fmt.Fprintf(&b, "%s-%s - %s\n\n", binary, sub.Name, sub.Usage)

	b.WriteString("# SYNOPSIS\n\n")
	fmt.Fprintf(&b, "`%s`\n\n", synopsis(sub))

	b.WriteString("# DESCRIPTION\n\n")
	if n.Description != "" {
		b.WriteString(n.Description + "\n\n")
	} else {
		b.WriteString(sub.Usage + ".\n\n")
	}

	if len(sub.Flags) > 0 {
		b.WriteString("# OPTIONS\n\n")
		writeOptions(&b, sub.Flags)
	}
	if len(tree.Flags) > 0 {
		b.WriteString("# GLOBAL OPTIONS\n\n")
		writeOptions(&b, tree.Flags)
	}

	if len(n.Examples) > 0 {
		b.WriteString("# EXAMPLES\n\n")
		for _, ex := range n.Examples {
			fmt.Fprintf(&b, "%s:\n\n    %s\n\n", ex.Desc, ex.Cmd)
		}
	}

	b.WriteString("# SEE ALSO\n\n")
	fmt.Fprintf(&b, "%s(1), %s\n", binary, homepage)
	return b.String()
}

var placeholderRe = regexp.MustCompile(`<([^<>]+)>`)

// tldrPage renders a tldr-pages entry. Without hand-written examples the
// synopsis and --help stand in.
func tldrPage(sub *cli.Command, n note) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s-%s\n\n", binary, sub.Name)
	short := n.Description
	if short == "" {
		short = sub.Usage + "."
	}
	fmt.Fprintf(&b, "> %s\n> More information: %s.\n", short, homepage)

	exs := n.Examples
	if len(exs) == 0 {
		exs = []example{
			{Desc: "Show the synopsis", Cmd: synopsis(sub)},
			{Desc: "Show help for the command", Cmd: fmt.Sprintf("%s %s --help", binary, sub.Name)},
		}
	}
	for _, ex := range exs {
		cmd := strings.Join(strings.Fields(ex.Cmd), " ")
		fmt.Fprintf(&b, "\n- %s:\n\n`%s`\n", ex.Desc, placeholderRe.ReplaceAllString(cmd, "{{$1}}"))
	}
	return b.String()
}

// syncFile writes content to path unless it already holds it, ignoring
// surrounding whitespace. In check mode nothing is written. It reports
// whether the file differed.
func syncFile(path string, content []byte, check bool) (bool, error) {
	old, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err == nil && bytes.Equal(bytes.TrimSpace(old), bytes.TrimSpace(content)) {
		return false, nil
	}
	if check {
		return true, nil
	}
	return true, os.WriteFile(path, content, 0o644)
}
