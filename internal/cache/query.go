// Copyright (c) 2025 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// AllName is the query name that matches every entry.
const AllName = "all"

const (
	dayMillis = int64(24 * time.Hour / time.Millisecond)
	yearDays  = 365

	// maxAgeDays keeps a relative age well inside epoch milliseconds.
	maxAgeDays = math.MaxInt64 / 4 / dayMillis
)

// Query is the canonical invalidation filter every Request resolves to.
//
// An empty Name is "not supplied". A nil Tags is "not supplied"; a non-nil
// empty Tags is supplied and matches nothing by tag. A zero Cutoff disables
// the age guard.
type Query struct {
	Name   string
	Tags   []string
	Cutoff time.Time
}

// Request is anything a caller may hand to Registry.Clear: All, ByName,
// Filter, or an already resolved Query.
type Request interface {
	resolve(now time.Time) Query
}

// All clears every entry.
type All struct{}

func (All) resolve(time.Time) Query { return Query{Name: AllName} }

// ByName clears the entry with this exact name.
type ByName string

func (n ByName) resolve(time.Time) Query { return Query{Name: string(n)} }

// Filter is the structured request. Days and Years are offsets back from
// now; when either is set they replace Date.
type Filter struct {
	Name  string
	Tags  []string
	Date  time.Time
	Days  int
	Years int
}

func (f Filter) resolve(now time.Time) Query {
	q := Query{Name: f.Name, Tags: f.Tags, Cutoff: f.Date}
	if f.Days != 0 || f.Years != 0 {
		q.Cutoff = time.UnixMilli(now.UnixMilli() - ageDays(f.Days, f.Years)*dayMillis)
	}
	return q
}

// ageDays totals a relative age in days, saturating at maxAgeDays.
func ageDays(days, years int) int64 {
	clamp := func(v int64) int64 { return max(-maxAgeDays, min(v, maxAgeDays)) }
	return clamp(clamp(int64(days)) + clamp(int64(years))*yearDays)
}

func (q Query) resolve(time.Time) Query { return q }

// Resolve turns req into its canonical Query relative to now. A nil request
// is the unscoped sweep.
func Resolve(req Request, now time.Time) Query {
	if req == nil {
		return Query{}
	}
	return req.resolve(now)
}

// ParseRequest maps a bare string onto a Request: "all" is All, "" is the
// unscoped sweep, anything else is a name.
func ParseRequest(s string) Request {
	switch s {
	case AllName:
		return All{}
	case "":
		return Query{}
	default:
		return ByName(s)
	}
}

// Matches applies the invalidation rule to an entry's metadata. date is the
// entry's build time in epoch milliseconds and is ignored when hasDate is
// false.
func (q Query) Matches(name string, tags []string, date int64, hasDate bool) bool {
	if !q.selects(name, tags) {
		return false
	}
	if q.Cutoff.IsZero() || !hasDate {
		return true
	}
	return q.Cutoff.UnixMilli() > date
}

func (q Query) selects(name string, tags []string) bool {
	switch {
	case q.Name == AllName:
		return true
	case q.Name != "" && q.Name == name:
		return true
	case q.Tags != nil && tagsOverlap(q.Tags, tags):
		return true
	case q.Name == "" && q.Tags == nil:
		return true
	}
	return false
}

// tagsOverlap reports whether any query tag is a prefix of any entry tag.
func tagsOverlap(query, entry []string) bool {
	for _, t := range query {
		for _, i := range entry {
			if strings.HasPrefix(i, t) {
				return true
			}
		}
	}
	return false
}

// String renders the query for logs.
func (q Query) String() string {
	var parts []string
	if q.Name != "" {
		parts = append(parts, "name="+q.Name)
	}
	if q.Tags != nil {
		parts = append(parts, fmt.Sprintf("tags=%v", q.Tags))
	}
	if !q.Cutoff.IsZero() {
		parts = append(parts, "before="+q.Cutoff.UTC().Format(time.RFC3339))
	}
	if len(parts) == 0 {
		return "<unscoped>"
	}
	return strings.Join(parts, " ")
}

type queryJSON struct {
	Name string   `json:"name,omitempty"`
	Tags []string `json:"tags"`
	Date *int64   `json:"date,omitempty"`
}

// MarshalJSON encodes the query with the cutoff as epoch milliseconds. Tags
// keep the nil/empty distinction as null/[].
func (q Query) MarshalJSON() ([]byte, error) {
	w := queryJSON{Name: q.Name, Tags: q.Tags}
	if !q.Cutoff.IsZero() {
		ms := q.Cutoff.UnixMilli()
		w.Date = &ms
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (q *Query) UnmarshalJSON(b []byte) error {
	var w queryJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	*q = Query{Name: w.Name, Tags: w.Tags}
	if w.Date != nil {
		q.Cutoff = time.UnixMilli(*w.Date)
	}
	return nil
}
