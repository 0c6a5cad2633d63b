// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package jsonfile

import (
	"bytes"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Doc is an in-memory JSON document addressed by gjson/sjson paths. A Doc
// with no content is empty and reads as null.
type Doc struct {
	raw []byte
}

// NewDoc wraps raw JSON. Whitespace-only input and a bare null are empty.
func NewDoc(raw []byte) *Doc {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return &Doc{}
	}
	return &Doc{raw: append([]byte(nil), raw...)}
}

// IsEmpty reports whether the document has no content.
func (d *Doc) IsEmpty() bool {
	return len(d.raw) == 0
}

// Bytes returns a copy of the raw document.
func (d *Doc) Bytes() []byte {
	return append([]byte(nil), d.raw...)
}

// Get returns the value at path. A missing path yields a Result whose
// Exists() is false.
func (d *Doc) Get(path string) gjson.Result {
	if d.IsEmpty() {
		return gjson.Result{}
	}
	return gjson.GetBytes(d.raw, path)
}

// Set marshals value and writes it at path, creating intermediate objects.
func (d *Doc) Set(path string, value any) error {
	out, err := sjson.SetBytes(d.base(), path, value)
	if err != nil {
		return err
	}
	d.raw = out
	return nil
}

// SetRaw writes already-encoded JSON at path.
func (d *Doc) SetRaw(path string, raw []byte) error {
	out, err := sjson.SetRawBytes(d.base(), path, raw)
	if err != nil {
		return err
	}
	d.raw = out
	return nil
}

// Remove deletes path. Removing a missing path is a no-op.
func (d *Doc) Remove(path string) error {
	if d.IsEmpty() {
		return nil
	}
	out, err := sjson.DeleteBytes(d.Bytes(), path)
	if err != nil {
		return err
	}
	d.raw = out
	return nil
}

func (d *Doc) clone() *Doc {
	return &Doc{raw: d.Bytes()}
}

// base returns a private copy of the document to mutate, or an empty object.
func (d *Doc) base() []byte {
	if d.IsEmpty() {
		return []byte("{}")
	}
	return d.Bytes()
}

const pathSpecials = `\.*?|#@`

// Escape quotes the characters gjson and sjson treat as path syntax so seg
// can be used as a single path component.
func Escape(seg string) string {
	if !strings.ContainsAny(seg, pathSpecials) {
		return seg
	}
	var b strings.Builder
	for _, r := range seg {
		if strings.ContainsRune(pathSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
