// Package rotation buckets time into the periods that scope a producer's DID.
//
// Labels become part of a hash seed, so every function here is pure and the
// produced strings must never change format.
package rotation

import (
	"fmt"
	"strings"
	"time"

	dErrors "semear/pkg/domain-errors"
)

// Mode selects the rotation granularity.
type Mode string

const (
	Hourly      Mode = "hourly"
	Daily       Mode = "daily"
	Weekly      Mode = "weekly"
	Monthly     Mode = "monthly"
	Quadrennial Mode = "quadrennial"
)

// DefaultMode matches the four-year compliance cycle of the cooperative.
const DefaultMode = Quadrennial

// Modes lists every supported mode, finest first.
var Modes = []Mode{Hourly, Daily, Weekly, Monthly, Quadrennial}

// legacy names used by the first wallet builds
var aliases = map[string]Mode{
	"hours":  Hourly,
	"days":   Daily,
	"weeks":  Weekly,
	"months": Monthly,
	"years":  Quadrennial,
}

// ParseMode accepts canonical names and legacy aliases, case-insensitive.
// An empty string yields DefaultMode.
func ParseMode(raw string) (Mode, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return DefaultMode, nil
	}
	if m, ok := aliases[s]; ok {
		return m, nil
	}
	m := Mode(s)
	if _, ok := variants[m]; !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown rotation mode %q", raw))
	}
	return m, nil
}

func (m Mode) String() string {
	return string(m)
}

// Valid reports whether m is one of Modes.
func (m Mode) Valid() bool {
	_, ok := variants[m]
	return ok
}

// DefaultDepth is the number of periods a verifier looks back by default.
func (m Mode) DefaultDepth() int {
	return m.variant().depth()
}

// Label returns the period label of t in t's own location.
func (m Mode) Label(t time.Time) string {
	return m.variant().label(t)
}

// Back moves t back n whole buckets. The result lies inside the bucket n
// periods before t's bucket.
func (m Mode) Back(t time.Time, n int) time.Time {
	return m.variant().back(t, n)
}

// Label is the free-function form of Mode.Label.
func Label(m Mode, t time.Time) string {
	return m.Label(t)
}

func (m Mode) variant() period {
	if v, ok := variants[m]; ok {
		return v
	}
	return variants[DefaultMode]
}

type period interface {
	label(t time.Time) string
	back(t time.Time, n int) time.Time
	depth() int
}

var variants = map[Mode]period{
	Hourly:      hourly{},
	Daily:       daily{},
	Weekly:      weekly{},
	Monthly:     monthly{},
	Quadrennial: quadrennial{},
}

type hourly struct{}

func (hourly) label(t time.Time) string {
	return t.Format("2006-01-02") + "-H" + t.Format("15")
}

func (hourly) back(t time.Time, n int) time.Time {
	return t.Add(-time.Duration(n) * time.Hour)
}

func (hourly) depth() int { return 24 }

type daily struct{}

func (daily) label(t time.Time) string {
	return t.Format("2006-01-02")
}

func (daily) back(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, -n)
}

func (daily) depth() int { return 7 }

// weekly labels use the ISO week-year, so 2024-12-30 is 2025-W01.
type weekly struct{}

func (weekly) label(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

func (weekly) back(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, -7*n)
}

func (weekly) depth() int { return 12 }

type monthly struct{}

func (monthly) label(t time.Time) string {
	return t.Format("2006-01")
}

// back anchors on the first of the month so day overflow (Mar 31 - 1 month)
// cannot skip a period.
func (monthly) back(t time.Time, n int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 12, 0, 0, 0, t.Location())
	return first.AddDate(0, -n, 0)
}

func (monthly) depth() int { return 12 }

type quadrennial struct{}

func (quadrennial) label(t time.Time) string {
	start := blockStart(t.Year())
	return fmt.Sprintf("%d-%d", start, start+4)
}

func (quadrennial) back(t time.Time, n int) time.Time {
	jan := time.Date(t.Year(), time.January, 1, 12, 0, 0, 0, t.Location())
	return jan.AddDate(-4*n, 0, 0)
}

func (quadrennial) depth() int { return 3 }

func blockStart(year int) int {
	start := (year / 4) * 4
	if year < 0 && year%4 != 0 {
		start -= 4
	}
	return start
}
