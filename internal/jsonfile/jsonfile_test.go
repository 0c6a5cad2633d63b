// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package jsonfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/staranto/cachekit/internal/kiterr"
)

func TestLoad_MissingAndEmpty(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content *string
	}{
		{"missing file", nil},
		{"empty file", ptr("")},
		{"whitespace", ptr("  \n")},
		{"null", ptr("null")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := filepath.Join(dir, tt.name+".json")
			if tt.content != nil {
				require.NoError(t, os.WriteFile(p, []byte(*tt.content), 0o600))
			}

			f := New(p, false)
			empty, err := f.IsEmpty()
			require.NoError(t, err)
			assert.True(t, empty)

			v, err := f.Get("date")
			require.NoError(t, err)
			assert.False(t, v.Exists())
		})
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	p := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"name": "x",`), 0o600))

	f := New(p, false)
	_, err := f.Get("name")
	require.Error(t, err)
	assert.ErrorIs(t, err, kiterr.ErrPersistence)

	var ke *kiterr.Error
	require.True(t, errors.As(err, &ke))
	assert.Equal(t, p, ke.Context["file"])
	assert.Equal(t, `{"name": "x",`, string(ke.Src))
}

func TestSetSaveReload(t *testing.T) {
	p := filepath.Join(t.TempDir(), "doc.json")

	f := New(p, false)
	require.NoError(t, f.Set("name", "weather"))
	require.NoError(t, f.Set("tags", []string{"api:v1"}))
	require.NoError(t, f.Set("date", int64(1700000000000)))
	require.NoError(t, f.Set("data.temp", 72))
	require.NoError(t, f.Save())

	g := New(p, false)
	name, err := g.Get("name")
	require.NoError(t, err)
	assert.Equal(t, "weather", name.String())

	tags, _ := g.Get("tags")
	assert.Equal(t, `["api:v1"]`, tags.Raw)

	date, _ := g.Get("date")
	assert.Equal(t, int64(1700000000000), date.Int())

	temp, _ := g.Get("data.temp")
	assert.Equal(t, int64(72), temp.Int())
}

func TestSave_FormatAndCompact(t *testing.T) {
	dir := t.TempDir()

	compact := New(filepath.Join(dir, "compact.json"), false)
	require.NoError(t, compact.Set("a.b", 1))
	require.NoError(t, compact.Save())
	raw, err := os.ReadFile(compact.Path())
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"b":1}}`, string(raw))

	formatted := New(filepath.Join(dir, "pretty.json"), true)
	require.NoError(t, formatted.Set("a.b", 1))
	require.NoError(t, formatted.Save())
	raw, err = os.ReadFile(formatted.Path())
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": {\n    \"b\": 1\n  }\n}\n", string(raw))
}

func TestSave_EmptyWritesEmptyFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "empty.json")
	f := New(p, false)
	require.NoError(t, f.Save())

	raw, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestRemove(t *testing.T) {
	f := New(filepath.Join(t.TempDir(), "doc.json"), false)
	require.NoError(t, f.Set("data.a", 1))
	require.NoError(t, f.Set("data.b", 2))
	require.NoError(t, f.Remove("data.a"))
	require.NoError(t, f.Remove("missing.path"))

	b, err := f.Bytes()
	require.NoError(t, err)
	assert.JSONEq(t, `{"data":{"b":2}}`, string(b))
}

func TestUpdate_CommitsOnlyOnSuccess(t *testing.T) {
	p := filepath.Join(t.TempDir(), "doc.json")
	f := New(p, false)
	require.NoError(t, f.Set("date", nil))
	require.NoError(t, f.Save())

	boom := errors.New("boom")
	err := f.Update(func(d *Doc) error {
		if err := d.Set("date", 1); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	date, _ := f.Get("date")
	assert.Equal(t, "null", date.Raw, "memory must not change on failure")

	raw, _ := os.ReadFile(p)
	assert.JSONEq(t, `{"date":null}`, string(raw), "disk must not change on failure")

	require.NoError(t, f.Update(func(d *Doc) error {
		if err := d.Set("date", 5); err != nil {
			return err
		}
		return d.SetRaw("data", []byte(`{"x":true}`))
	}))
	raw, _ = os.ReadFile(p)
	assert.JSONEq(t, `{"date":5,"data":{"x":true}}`, string(raw))
}

func TestUpdate_SaveFailureKeepsMemory(t *testing.T) {
	p := filepath.Join(t.TempDir(), "missing-dir", "doc.json")
	f := New(p, false)

	err := f.Update(func(d *Doc) error { return d.Set("date", 1) })
	require.Error(t, err)
	assert.ErrorIs(t, err, kiterr.ErrPersistence)

	empty, err := f.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	f := New(filepath.Join(dir, "doc.json"), false)
	require.NoError(t, f.Set("name", "x"))
	require.NoError(t, f.Save())
	require.NoError(t, f.Save())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEscape(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"a.b", `a\.b`},
		{"what?*", `what\?\*`},
		{`back\slash`, `back\\slash`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Escape(tt.in))
		})
	}
}

func TestEscape_RoundTripsThroughSetAndGet(t *testing.T) {
	d := NewDoc(nil)
	key := "v1.2.3"
	require.NoError(t, d.Set("data."+Escape(key), "ok"))

	assert.Equal(t, "ok", d.Get("data."+Escape(key)).String())
	assert.False(t, d.Get("data.v1").Exists())
}

func ptr(s string) *string { return &s }
