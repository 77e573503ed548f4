// ABOUTME: Tests for LogEntry and Set models.
// ABOUTME: Covers lenient set decoding and the RxW set parser.
package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSetUnmarshalCoercesStrings(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		reps   int
		weight float64
	}{
		{"numbers", `{"reps":10,"weight":20.5}`, 10, 20.5},
		{"strings", `{"reps":"8","weight":"25"}`, 8, 25},
		{"padded strings", `{"reps":" 5 ","weight":" 60.0 "}`, 5, 60},
		{"missing weight", `{"reps":12}`, 12, 0},
		{"garbage", `{"reps":"lots","weight":null}`, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Set
			if err := json.Unmarshal([]byte(tt.input), &s); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if s.Reps != tt.reps || s.Weight != tt.weight {
				t.Errorf("got %+v, want reps=%d weight=%v", s, tt.reps, tt.weight)
			}
		})
	}
}

func TestParseSet(t *testing.T) {
	tests := []struct {
		in      string
		want    Set
		wantErr bool
	}{
		{"5x60", Set{Reps: 5, Weight: 60}, false},
		{"8X22.5", Set{Reps: 8, Weight: 22.5}, false},
		{"10x40kg", Set{Reps: 10, Weight: 40}, false},
		{"15", Set{Reps: 15}, false},
		{"x60", Set{}, true},
		{"5x", Set{}, true},
		{"-1x20", Set{}, true},
	}
	for _, tt := range tests {
		got, err := ParseSet(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSet(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseSet(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestLogEntryVolumeAndClone(t *testing.T) {
	e := NewLogEntry(1, time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC), Set{Reps: 10, Weight: 20}, Set{Reps: 8, Weight: 25})

	if e.Volume() != 400 {
		t.Errorf("Volume = %v, want 400", e.Volume())
	}
	c := e.Clone()
	c.Sets[0].Reps = 1
	if e.Sets[0].Reps != 10 {
		t.Error("Clone shares the Sets slice")
	}
	if got := (Set{Reps: 8, Weight: 22.5}).String(); got != "8x22.5" {
		t.Errorf("String = %q, want 8x22.5", got)
	}
}
