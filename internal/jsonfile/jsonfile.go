// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package jsonfile is the document store: one JSON document per file, loaded
// lazily, read and written by dotted path, and saved atomically.
package jsonfile

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/staranto/cachekit/internal/kiterr"
)

// File is a JSON document bound to a path on disk.
type File struct {
	path   string
	format bool
	doc    *Doc
}

// New returns a File for path. When format is true the document is
// pretty-printed on save, otherwise it is written compact. Nothing is read
// until the first access.
func New(path string, format bool) *File {
	return &File{path: path, format: format}
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

// Load (re)reads the document from disk. A missing or empty file loads as an
// empty document. Content that is not valid JSON is a persistence error
// carrying the path and the raw bytes.
func (f *File) Load() error {
	src, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.doc = &Doc{}
		return nil
	}
	if err != nil {
		return kiterr.Persistence("jsonfile.load.read", "cannot read document", f.path, nil, err)
	}
	if len(bytes.TrimSpace(src)) > 0 && !gjson.ValidBytes(src) {
		return kiterr.Persistence("jsonfile.load.parse", "document is not valid JSON", f.path, src, nil)
	}
	f.doc = NewDoc(src)
	return nil
}

func (f *File) ensure() error {
	if f.doc != nil {
		return nil
	}
	return f.Load()
}

// IsEmpty reports whether the document has no content.
func (f *File) IsEmpty() (bool, error) {
	if err := f.ensure(); err != nil {
		return false, err
	}
	return f.doc.IsEmpty(), nil
}

// Get returns the value at path.
func (f *File) Get(path string) (gjson.Result, error) {
	if err := f.ensure(); err != nil {
		return gjson.Result{}, err
	}
	return f.doc.Get(path), nil
}

// Bytes returns a copy of the in-memory document.
func (f *File) Bytes() ([]byte, error) {
	if err := f.ensure(); err != nil {
		return nil, err
	}
	return f.doc.Bytes(), nil
}

// Set writes value at path in memory. Call Save to persist.
func (f *File) Set(path string, value any) error {
	if err := f.ensure(); err != nil {
		return err
	}
	return f.doc.Set(path, value)
}

// Remove deletes path in memory. Call Save to persist.
func (f *File) Remove(path string) error {
	if err := f.ensure(); err != nil {
		return err
	}
	return f.doc.Remove(path)
}

// Save writes the in-memory document to disk.
func (f *File) Save() error {
	if err := f.ensure(); err != nil {
		return err
	}
	return f.write(f.doc)
}

// Update applies fn to a copy of the document, saves the copy, and only then
// makes it the in-memory document. If fn or the save fails, neither memory
// nor disk changes.
func (f *File) Update(fn func(d *Doc) error) error {
	if err := f.ensure(); err != nil {
		return err
	}
	next := f.doc.clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := f.write(next); err != nil {
		return err
	}
	f.doc = next
	return nil
}

// write replaces the file through a temp file and rename so readers never
// observe a partial document.
func (f *File) write(d *Doc) error {
	var out []byte
	switch {
	case d.IsEmpty():
		out = nil
	case f.format:
		out = pretty.Pretty(d.raw)
	default:
		out = pretty.Ugly(d.raw)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".tmp*")
	if err != nil {
		return kiterr.Persistence("jsonfile.save.create", "cannot create temp file", f.path, nil, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(out); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return kiterr.Persistence("jsonfile.save.write", "cannot write document", f.path, nil, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return kiterr.Persistence("jsonfile.save.write", "cannot write document", f.path, nil, err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		_ = os.Remove(tmpPath)
		return kiterr.Persistence("jsonfile.save.rename", "cannot replace document", f.path, nil, err)
	}
	return nil
}
