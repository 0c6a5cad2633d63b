// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

// Package kiterr defines the error taxonomy shared by the storage, document
// and cache packages. Every error carries a Kind for errors.Is matching and a
// dotted Ident naming the operation that failed.
package kiterr

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is a machine-readable error class.
type Kind string

const (
	// KindConfiguration means a required identity or setting is missing.
	KindConfiguration Kind = "configuration"
	// KindNotFound means a named thing was never registered.
	KindNotFound Kind = "not_found"
	// KindPersistence means a document could not be read, parsed or written.
	KindPersistence Kind = "persistence"
	// KindInvalid means caller input was rejected.
	KindInvalid Kind = "invalid"
)

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrPersistence   = &Error{Kind: KindPersistence}
	ErrInvalid       = &Error{Kind: KindInvalid}
)

// Error is the concrete error type for every Kind.
type Error struct {
	Kind    Kind
	Ident   string
	Message string
	Context map[string]any
	// Src holds the raw content that failed to parse, if any.
	Src []byte
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Ident != "" {
		msg = e.Ident + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same Kind. A target with an
// Ident only matches errors whose Ident starts with it.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	return t.Ident == "" || e.HasIdent(t.Ident)
}

// HasIdent reports whether the error's Ident starts with prefix.
func (e *Error) HasIdent(prefix string) bool {
	return strings.HasPrefix(e.Ident, prefix)
}

// Info renders the error with its context for diagnostics.
func (e *Error) Info() string {
	ctx, err := json.Marshal(e.Context)
	if err != nil {
		ctx = []byte(fmt.Sprintf("%v", e.Context))
	}
	return fmt.Sprintf("[%s] %s %s", e.Ident, e.Message, ctx)
}

// Configuration returns a KindConfiguration error.
func Configuration(ident, message string) *Error {
	return &Error{Kind: KindConfiguration, Ident: ident, Message: message}
}

// NotFound returns a KindNotFound error for name.
func NotFound(ident, name string) *Error {
	return &Error{
		Kind:    KindNotFound,
		Ident:   ident,
		Message: fmt.Sprintf("%q is not registered", name),
		Context: map[string]any{"name": name},
	}
}

// Persistence returns a KindPersistence error for file. src may be nil.
func Persistence(ident, message, file string, src []byte, err error) *Error {
	return &Error{
		Kind:    KindPersistence,
		Ident:   ident,
		Message: message,
		Context: map[string]any{"file": file},
		Src:     src,
		Err:     err,
	}
}

// Invalid returns a KindInvalid error.
func Invalid(ident, message string, context map[string]any) *Error {
	return &Error{Kind: KindInvalid, Ident: ident, Message: message, Context: context}
}
