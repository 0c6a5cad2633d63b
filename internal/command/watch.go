// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/urfave/cli/v3"

	"github.com/staranto/cachekit/internal/events"
	"github.com/staranto/cachekit/internal/meta"
)

// WatchCommandAction applies clear signals written by other processes until
// interrupted, printing one line per cache event.
func WatchCommandAction(ctx context.Context, cmd *cli.Command) error {
	rt, err := OpenRuntime(cmd, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	w := stdout(cmd)
	rt.Bus.SubscribeAll(func(ev events.Event) {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			payload = []byte(fmt.Sprintf("%q", fmt.Sprint(ev.Payload)))
		}
		fmt.Fprintf(w, "%s %s %s\n", ev.At.Format(time.RFC3339), ev.Topic, payload)
	})

	watcher, err := rt.Registry.Watch()
	if err != nil {
		return err
	}
	defer watcher.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("app", rt.Store.App()).Info("watching")
	<-ctx.Done()
	return nil
}

// WatchCommandBuilder constructs the cli.Command definition for the "watch"
// command.
func WatchCommandBuilder(cmd *cli.Command, meta meta.Meta) *cli.Command {
	return (&CommandBuilder{
		Name:      "watch",
		Usage:     "apply clears broadcast by other processes",
		UsageText: `cachekit watch`,
		Action:    WatchCommandAction,
		Meta:      meta,
	}).Build()
}
