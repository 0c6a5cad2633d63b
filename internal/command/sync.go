// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/staranto/cachekit/internal/meta"
	"github.com/staranto/cachekit/internal/remote"
)

// newSyncer is replaced in tests to avoid talking to AWS.
var newSyncer = func(ctx context.Context, cmd *cli.Command) (*remote.Syncer, error) {
	store, err := NewStore(cmd)
	if err != nil {
		return nil, err
	}

	cfg, err := remote.LoadAWSConfig(ctx,
		remote.WithProfile(cmd.String("profile")),
		remote.WithRegion(cmd.String("region")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := remote.NewS3(cfg, remote.WithEndpoint(cmd.String("endpoint")))

	return remote.NewSyncer(client, store, cmd.String("bucket"), cmd.String("prefix"))
}

// PushCommandAction uploads the application's cache documents to S3.
func PushCommandAction(ctx context.Context, cmd *cli.Command) error {
	s, err := newSyncer(ctx, cmd)
	if err != nil {
		return err
	}
	keys, err := s.Push(ctx)
	w := stdout(cmd)
	for _, k := range keys {
		fmt.Fprintln(w, k)
	}
	return err
}

// PullCommandAction downloads shared cache documents from S3, replacing the
// local copies.
func PullCommandAction(ctx context.Context, cmd *cli.Command) error {
	s, err := newSyncer(ctx, cmd)
	if err != nil {
		return err
	}
	paths, err := s.Pull(ctx)
	w := stdout(cmd)
	for _, p := range paths {
		fmt.Fprintln(w, p)
	}
	return err
}

// PushCommandBuilder constructs the cli.Command definition for the "push"
// command.
func PushCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "push",
		Usage:     "upload cache documents to S3",
		UsageText: `cachekit push --bucket B [--prefix P] [--region R] [--profile P]`,
		Flags:     NewBucketFlags("push", meta.Config.Source),
		Action:    PushCommandAction,
		Meta:      meta,
	}).Build()
}

// PullCommandBuilder constructs the cli.Command definition for the "pull"
// command.
func PullCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "pull",
		Usage:     "download cache documents from S3",
		UsageText: `cachekit pull --bucket B [--prefix P] [--region R] [--profile P]`,
		Flags:     NewBucketFlags("pull", meta.Config.Source),
		Action:    PullCommandAction,
		Meta:      meta,
	}).Build()
}
