// ABOUTME: Content fingerprints for log entries used to detect duplicates across devices.
// ABOUTME: Normalizes task name, calendar day, and set order before hashing with xxhash.
package fingerprint

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/harperreed/gym/internal/models"
)

// Key is a compact content hash of a log entry: 16 lowercase hex digits.
type Key string

// Fingerprint returns the content key of entry as recorded against taskName.
// Entries on the same local calendar day with the same multiset of sets
// produce the same key regardless of set order or time of day.
// A nil loc means time.Local.
func Fingerprint(entry *models.LogEntry, taskName string, loc *time.Location) Key {
	sum := xxhash.Sum64String(Canonical(entry, taskName, loc))
	return Key(fmt.Sprintf("%016x", sum))
}

// Canonical returns the deterministic text that Fingerprint hashes.
func Canonical(entry *models.LogEntry, taskName string, loc *time.Location) string {
	var date int64
	var sets []models.Set
	if entry != nil {
		date = entry.Date
		sets = entry.Sets
	}

	var b strings.Builder
	b.WriteString(models.NameKey(taskName))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(DayStart(date, loc), 10))
	b.WriteByte('|')
	for i, s := range normalizeSets(sets) {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(s.Weight, 'f', -1, 64))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(s.Reps))
	}
	return b.String()
}

// AreDuplicate compares two entries field by field using the same
// normalization as Fingerprint. It never hashes, so it confirms a
// fingerprint match independently of the hash function.
func AreDuplicate(a, b *models.LogEntry, nameA, nameB string, loc *time.Location) bool {
	if models.NameKey(nameA) != models.NameKey(nameB) {
		return false
	}
	var dateA, dateB int64
	var setsA, setsB []models.Set
	if a != nil {
		dateA, setsA = a.Date, a.Sets
	}
	if b != nil {
		dateB, setsB = b.Date, b.Sets
	}
	if DayStart(dateA, loc) != DayStart(dateB, loc) {
		return false
	}
	na, nb := normalizeSets(setsA), normalizeSets(setsB)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}

// DayStart returns local midnight of the day containing millis, in epoch millis.
func DayStart(millis int64, loc *time.Location) int64 {
	if loc == nil {
		loc = time.Local
	}
	t := time.UnixMilli(millis).In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc).UnixMilli()
}

// normalizeSets copies sets, rounds weights to two decimals, and sorts by weight then reps.
func normalizeSets(sets []models.Set) []models.Set {
	out := make([]models.Set, len(sets))
	for i, s := range sets {
		out[i] = models.Set{Reps: s.Reps, Weight: roundWeight(s.Weight)}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight < out[j].Weight
		}
		return out[i].Reps < out[j].Reps
	})
	return out
}

func roundWeight(w float64) float64 {
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return 0
	}
	r := math.Round(w*100) / 100
	if r == 0 {
		return 0
	}
	return r
}
