// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/staranto/cachekit/internal/jsonfile"
	"github.com/staranto/cachekit/internal/kiterr"
)

// Info describes one cache document found on disk.
type Info struct {
	Name  string    `json:"name" yaml:"name"`
	Tags  []string  `json:"tags" yaml:"tags"`
	Date  time.Time `json:"date,omitzero" yaml:"date,omitempty"`
	Stale bool      `json:"stale" yaml:"stale"`
	Live  bool      `json:"live" yaml:"live"`
	Size  int64     `json:"size" yaml:"size"`
	Path  string    `json:"path" yaml:"path"`
}

// documents returns the cache document paths, sorted. A missing cache
// directory yields none.
func (r *Registry) documents() ([]string, error) {
	dir, err := r.store.CacheDir()
	if err != nil {
		return nil, err
	}
	files, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, kiterr.Persistence("cache.scan", "cannot read cache directory", dir, nil, err)
	}

	var paths []string
	for _, f := range files {
		n := f.Name()
		if f.IsDir() || strings.HasPrefix(n, ".") || filepath.Ext(n) != ".json" {
			continue
		}
		paths = append(paths, filepath.Join(dir, n))
	}
	sort.Strings(paths)
	return paths, nil
}

func (r *Registry) sweep(ctx context.Context, q Query) ([]string, error) {
	paths, err := r.documents()
	if err != nil {
		return nil, err
	}

	var (
		cleared []string
		errs    []error
	)
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		name, ok, err := r.sweepOne(q, p)
		if err != nil {
			r.log.WithError(err).WithField("file", p).Warn("skipping document")
			errs = append(errs, err)
			continue
		}
		if ok {
			cleared = append(cleared, name)
		}
	}
	return cleared, errors.Join(errs...)
}

func (r *Registry) sweepOne(q Query, path string) (string, bool, error) {
	doc := jsonfile.New(path, false)
	date, err := doc.Get("date")
	if err != nil {
		return "", false, err
	}
	if !date.Exists() {
		return "", false, nil
	}

	nv, _ := doc.Get("name")
	name := nv.String()
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), ".json")
	}

	if e := r.live(name); e != nil && e.Path() == path {
		ok, err := e.MarkStale(q)
		return name, ok, err
	}

	if date.Type != gjson.Number {
		return name, false, nil
	}
	tv, _ := doc.Get("tags")
	if !q.Matches(name, stringsOf(tv), date.Int(), true) {
		return name, false, nil
	}
	if err := doc.Update(markStale); err != nil {
		return name, false, err
	}
	r.log.WithField("cache", name).WithField("query", q.String()).Debug("staled on disk")
	return name, true, nil
}

// List describes every cache document on disk. Unreadable documents are
// reported in the joined error and left out.
func (r *Registry) List() ([]Info, error) {
	paths, err := r.documents()
	if err != nil {
		return nil, err
	}

	var (
		out  []Info
		errs []error
	)
	for _, p := range paths {
		raw, err := jsonfile.New(p, false).Bytes()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		doc := jsonfile.NewDoc(raw)
		date := doc.Get("date")
		if !date.Exists() {
			continue
		}

		info := Info{
			Name:  doc.Get("name").String(),
			Tags:  stringsOf(doc.Get("tags")),
			Stale: date.Type != gjson.Number,
			Size:  int64(len(raw)),
			Path:  p,
		}
		if info.Name == "" {
			info.Name = strings.TrimSuffix(filepath.Base(p), ".json")
		}
		if info.Tags == nil {
			info.Tags = []string{}
		}
		if !info.Stale {
			info.Date = time.UnixMilli(date.Int())
		}
		if e := r.live(info.Name); e != nil && e.Path() == p {
			info.Live = true
		}
		out = append(out, info)
	}
	return out, errors.Join(errs...)
}
