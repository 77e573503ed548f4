// ABOUTME: LogEntry and Set models for recorded training history.
// ABOUTME: Set decoding tolerates numeric strings from older payloads.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Set is one performed set.
type Set struct {
	Reps   int     `json:"reps" yaml:"reps"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// String renders the set as RxW, e.g. 5x60.
func (s Set) String() string {
	return fmt.Sprintf("%dx%s", s.Reps, strconv.FormatFloat(s.Weight, 'f', -1, 64))
}

// UnmarshalJSON accepts numbers or numeric strings for both fields.
// Values that cannot be parsed decode as zero.
func (s *Set) UnmarshalJSON(data []byte) error {
	var raw struct {
		Reps   json.RawMessage `json:"reps"`
		Weight json.RawMessage `json:"weight"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Reps = int(coerceNumber(raw.Reps))
	s.Weight = coerceNumber(raw.Weight)
	return nil
}

func coerceNumber(raw json.RawMessage) float64 {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return 0
	}
	if unquoted, err := strconv.Unquote(text); err == nil {
		text = strings.TrimSpace(unquoted)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0
	}
	return f
}

// ParseSet parses "RxW" (e.g. "5x60" or "8x22.5"). A bare number is reps at zero weight.
func ParseSet(s string) (Set, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	repsPart, weightPart, found := strings.Cut(s, "x")
	reps, err := strconv.Atoi(repsPart)
	if err != nil || reps < 0 {
		return Set{}, fmt.Errorf("invalid reps in %q", s)
	}
	if !found {
		return Set{Reps: reps}, nil
	}
	weight, err := strconv.ParseFloat(strings.TrimSuffix(weightPart, "kg"), 64)
	if err != nil || weight < 0 {
		return Set{}, fmt.Errorf("invalid weight in %q", s)
	}
	return Set{Reps: reps, Weight: weight}, nil
}

// LogEntry is one recorded session of a task on a given date.
type LogEntry struct {
	ID           int64  `json:"id" yaml:"id"`
	TaskID       int64  `json:"taskId" yaml:"task_id"`
	Date         int64  `json:"date" yaml:"date"`
	Sets         []Set  `json:"sets" yaml:"sets"`
	LastModified int64  `json:"lastModified" yaml:"last_modified"`
	DeviceID     string `json:"deviceId,omitempty" yaml:"device_id,omitempty"`
}

// NewLogEntry creates a LogEntry for taskID performed at date.
func NewLogEntry(taskID int64, date time.Time, sets ...Set) *LogEntry {
	return &LogEntry{
		TaskID: taskID,
		Date:   date.UnixMilli(),
		Sets:   append([]Set{}, sets...),
	}
}

// Time returns Date as a time.Time in the local zone.
func (e *LogEntry) Time() time.Time {
	return time.UnixMilli(e.Date)
}

// Volume returns the sum of reps times weight.
func (e *LogEntry) Volume() float64 {
	var v float64
	for _, s := range e.Sets {
		v += float64(s.Reps) * s.Weight
	}
	return v
}

// Clone returns a deep copy.
func (e *LogEntry) Clone() *LogEntry {
	c := *e
	c.Sets = append([]Set{}, e.Sets...)
	return &c
}
