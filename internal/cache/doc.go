// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package cache memoizes expensive computations in tagged JSON documents.
//
// Each Entry owns one document under the application's cache directory:
//
//	{"name":"weather","tags":["net:api"],"date":1735689600000,"data":{...}}
//
// A null date means stale. Get rebuilds a stale entry, persisting date and
// data in one atomic replacement. Registry.Clear sweeps every document in the
// cache directory, including ones no live entry owns, and stales those that
// match a Query by name, tag prefix or age.
package cache
