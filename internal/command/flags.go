// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	altsrc "github.com/urfave/cli-altsrc/v3"
	yaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"

	"github.com/staranto/cachekit/internal/output"
)

// Flags are built fresh for every command tree; urfave flags carry parse
// state and must not be shared between runs.

// NewAppFlags returns the root-level flags selecting the application and its
// storage base.
func NewAppFlags(cfgSource string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "app",
			Aliases: []string{"A"},
			Usage:   "application whose cache to operate on",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("CACHEKIT_APP"),
				yaml.YAML("app", altsrc.StringSourcer(cfgSource)),
			),
			Validator: func(value string) error {
				return FlagValidators(value, JammedFlagValidator)
			},
		},
		&cli.StringFlag{
			Name:  "root",
			Usage: "storage base directory",
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("CACHEKIT_ROOT"),
				yaml.YAML("root", altsrc.StringSourcer(cfgSource)),
			),
			Validator: func(value string) error {
				return FlagValidators(value, JammedFlagValidator)
			},
		},
	}
}

// NewGlobalFlags returns the listing flags shared by ls and stats. ns is the
// command name and scopes the config file lookups.
func NewGlobalFlags(ns, cfgSource string) []cli.Flag {
	return []cli.Flag{
		&cli.BoolWithInverseFlag{
			Name:    "color",
			Aliases: []string{"c"},
			Usage:   "enable colored text output",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(ns+".color", altsrc.StringSourcer(cfgSource)),
				yaml.YAML("color", altsrc.StringSourcer(cfgSource)),
			),
			Value: false,
		},
		&cli.StringFlag{
			Name:    "filter",
			Aliases: []string{"f"},
			Usage:   "comma-separated list of filters to apply to results",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "output format",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(ns+".output", altsrc.StringSourcer(cfgSource)),
				yaml.YAML("output", altsrc.StringSourcer(cfgSource)),
			),
			Value: "text",
			Validator: func(value string) error {
				return FlagValidators(value, OutputValidator)
			},
		},
		&cli.StringFlag{
			Name:    "sort",
			Aliases: []string{"s"},
			Usage:   "comma-separated list of attributes to sort the results by",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(ns+".sort", altsrc.StringSourcer(cfgSource)),
			),
		},
		&cli.BoolWithInverseFlag{
			Name:    "titles",
			Aliases: []string{"t"},
			Usage:   "show titles with text output",
			Sources: cli.NewValueSourceChain(
				yaml.YAML(ns+".titles", altsrc.StringSourcer(cfgSource)),
				yaml.YAML("titles", altsrc.StringSourcer(cfgSource)),
			),
			Value: false,
		},
	}
}

// NewTagFlag returns the repeatable --tag flag. Defaults come from
// "<ns>.tags" in the config file.
func NewTagFlag(ns, cfgSource string) *cli.StringSliceFlag {
	return &cli.StringSliceFlag{
		Name:  "tag",
		Usage: "tag, repeatable; clear matches by prefix",
		Sources: cli.NewValueSourceChain(
			yaml.YAML(ns+".tags", altsrc.StringSourcer(cfgSource)),
		),
	}
}

// NewBucketFlags returns the S3 target flags for push and pull.
func NewBucketFlags(ns, cfgSource string) []cli.Flag {
	return []cli.Flag{
		NameSpacedValueChainFlagFromConfigFile(ns, cfgSource, &cli.StringFlag{
			Name:    "bucket",
			Aliases: []string{"b"},
			Usage:   "S3 bucket holding shared caches",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CACHEKIT_BUCKET")),
		}),
		NameSpacedValueChainFlagFromConfigFile(ns, cfgSource, &cli.StringFlag{
			Name:    "prefix",
			Usage:   "object key prefix",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CACHEKIT_PREFIX")),
		}),
		NameSpacedValueChainFlagFromConfigFile(ns, cfgSource, &cli.StringFlag{
			Name:    "region",
			Usage:   "AWS region. Overrides the profile",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CACHEKIT_REGION")),
		}),
		NameSpacedValueChainFlagFromConfigFile(ns, cfgSource, &cli.StringFlag{
			Name:    "profile",
			Usage:   "AWS shared config profile",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CACHEKIT_PROFILE")),
		}),
		NameSpacedValueChainFlagFromConfigFile(ns, cfgSource, &cli.StringFlag{
			Name:  "endpoint",
			Usage: "S3-compatible endpoint URL",
		}),
	}
}

// NameSpacedValueChainFlagFromConfigFile adds namespaced and global config file
// sources to the given flag's Sources chain.
func NameSpacedValueChainFlagFromConfigFile(ns string, path string, flag *cli.StringFlag) *cli.StringFlag {
	src := yaml.YAML(ns+"."+flag.Name, altsrc.StringSourcer(path))
	flag.Sources.Chain = append(flag.Sources.Chain, src)

	src = yaml.YAML(flag.Name, altsrc.StringSourcer(path))
	flag.Sources.Chain = append(flag.Sources.Chain, src)

	return flag
}

// outputOptions collects the listing flags.
func outputOptions(cmd *cli.Command) output.Options {
	return output.Options{
		Format: cmd.String("output"),
		Filter: cmd.String("filter"),
		Sort:   cmd.String("sort"),
		Titles: cmd.Bool("titles"),
		Color:  cmd.Bool("color"),
	}
}
