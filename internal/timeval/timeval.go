// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package timeval provides a comparable point-in-time or duration value stored
// as float64 seconds. The *arr APIs mix "HH:MM:SS" time-remaining strings with
// ISO-8601 timestamps, and the decision logic subtracts one from the other, so
// both land on the same scalar.
package timeval

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseError reports a malformed duration or timestamp.
type ParseError struct {
	Kind  string
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s %q: %v", e.Kind, e.Input, e.Err)
	}
	return fmt.Sprintf("parse %s %q", e.Kind, e.Input)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	_, ok := target.(*ParseError)
	return ok
}

// Time is an immutable seconds value. It is either seconds since the Unix
// epoch or a duration in seconds, depending on how it was constructed.
type Time struct {
	secs float64
}

// Now returns the current wall-clock time.
func Now() Time {
	return FromTime(time.Now())
}

// FromTime converts a time.Time. Whole and fractional seconds are converted
// separately; UnixNano exceeds float64 precision for current dates.
func FromTime(t time.Time) Time {
	return Time{secs: float64(t.Unix()) + float64(t.Nanosecond())/1e9}
}

// FromSeconds wraps a raw seconds value.
func FromSeconds(secs float64) Time {
	return Time{secs: secs}
}

// FromDuration parses "HH:MM:SS". Hours are unbounded. A leading "D." day
// component and fractional seconds are accepted, matching .NET TimeSpan output.
func FromDuration(s string) (Time, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Time{}, &ParseError{Kind: "duration", Input: s}
	}

	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return Time{}, &ParseError{Kind: "duration", Input: s, Err: fmt.Errorf("expected HH:MM:SS")}
	}

	var days float64
	hoursPart := parts[0]
	if idx := strings.Index(hoursPart, "."); idx >= 0 {
		d, err := strconv.ParseUint(hoursPart[:idx], 10, 32)
		if err != nil {
			return Time{}, &ParseError{Kind: "duration", Input: s, Err: err}
		}
		days = float64(d)
		hoursPart = hoursPart[idx+1:]
	}

	hours, err := strconv.ParseUint(hoursPart, 10, 32)
	if err != nil {
		return Time{}, &ParseError{Kind: "duration", Input: s, Err: err}
	}
	minutes, err := strconv.ParseUint(parts[1], 10, 8)
	if err != nil {
		return Time{}, &ParseError{Kind: "duration", Input: s, Err: err}
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Time{}, &ParseError{Kind: "duration", Input: s, Err: err}
	}
	if minutes >= 60 || seconds < 0 || seconds >= 60 || math.IsNaN(seconds) {
		return Time{}, &ParseError{Kind: "duration", Input: s, Err: fmt.Errorf("minutes and seconds must be below 60")}
	}

	total := days*86400 + float64(hours)*3600 + float64(minutes)*60 + seconds
	return Time{secs: total}, nil
}

var isoLocalLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// FromISO8601 parses an ISO-8601 timestamp. A trailing "Z" means UTC; a
// timestamp without any offset is read in the local zone.
func FromISO8601(s string) (Time, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Time{}, &ParseError{Kind: "timestamp", Input: s}
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err == nil {
		return FromTime(t), nil
	}
	for _, layout := range isoLocalLayouts {
		if lt, lerr := time.ParseInLocation(layout, raw, time.Local); lerr == nil {
			return FromTime(lt), nil
		}
	}
	return Time{}, &ParseError{Kind: "timestamp", Input: s, Err: err}
}

// Seconds returns the underlying scalar.
func (t Time) Seconds() float64 {
	return t.secs
}

// Time converts an epoch value back to time.Time.
func (t Time) Time() time.Time {
	whole, frac := math.Modf(t.secs)
	return time.Unix(int64(whole), int64(math.Round(frac*1e9))).UTC()
}

// Add returns t + other.
func (t Time) Add(other Time) Time {
	return Time{secs: t.secs + other.secs}
}

// AddSeconds returns t + secs.
func (t Time) AddSeconds(secs float64) Time {
	return Time{secs: t.secs + secs}
}

// Sub returns t - other.
func (t Time) Sub(other Time) Time {
	return Time{secs: t.secs - other.secs}
}

// SubSeconds returns t - secs.
func (t Time) SubSeconds(secs float64) Time {
	return Time{secs: t.secs - secs}
}

// Compare returns -1, 0 or +1.
func (t Time) Compare(other Time) int {
	return compare(t.secs, other.secs)
}

// CompareSeconds compares against a raw seconds value.
func (t Time) CompareSeconds(secs float64) int {
	return compare(t.secs, secs)
}

func (t Time) Before(other Time) bool { return t.secs < other.secs }
func (t Time) After(other Time) bool  { return t.secs > other.secs }
func (t Time) Equal(other Time) bool  { return t.secs == other.secs }

// Exceeds reports whether t is strictly greater than secs.
func (t Time) Exceeds(secs float64) bool {
	return t.secs > secs
}

func compare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// DurationString renders HH:MM:SS with unbounded hours. Fractional seconds are
// truncated.
func (t Time) DurationString() string {
	total := int64(t.secs)
	sign := ""
	if total < 0 {
		sign = "-"
		total = -total
	}
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%s%02d:%02d:%02d", sign, hours, minutes, seconds)
}

// ISO8601 renders an epoch value as an RFC3339 UTC timestamp.
func (t Time) ISO8601() string {
	return t.Time().Format(time.RFC3339Nano)
}

func (t Time) String() string {
	return t.DurationString()
}

// MarshalJSON encodes epoch values as RFC3339 strings.
func (t Time) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.ISO8601())
}

// UnmarshalJSON accepts an RFC3339 string, an HH:MM:SS seconds string or a
// raw seconds number.
func (t *Time) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*t = FromSeconds(v)
		return nil
	case string:
		parsed, err := FromISO8601(v)
		if err != nil {
			// Older record files store epoch seconds as HH:MM:SS.
			legacy, lerr := FromDuration(v)
			if lerr != nil {
				return err
			}
			parsed = legacy
		}
		*t = parsed
		return nil
	default:
		return &ParseError{Kind: "timestamp", Input: string(data)}
	}
}
