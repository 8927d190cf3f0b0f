package table

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// KeyFunc renders one key cell into its comparable form. Joins and dedupes
// pass every key cell through the same KeyFunc on both sides.
type KeyFunc func(v any) string

const (
	keySep  = "\x1f"
	nullKey = "\x00"
)

// compositeKey renders the cells at idx. ok is false when any part is nil.
func compositeKey(row []any, idx []int, kf KeyFunc) (key string, ok bool) {
	if kf == nil {
		kf = FormatCell
	}
	ok = true
	var b strings.Builder
	for i, ix := range idx {
		if i > 0 {
			b.WriteString(keySep)
		}
		v := row[ix]
		if v == nil {
			ok = false
			b.WriteString(nullKey)
			continue
		}
		b.WriteString(kf(v))
	}
	return b.String(), ok
}

// keyIndex maps composite keys to row positions. Keys are bucketed by their
// xxhash digest and compared in full inside a bucket.
type keyIndex struct {
	buckets map[uint64][]keyEntry
	size    int
}

type keyEntry struct {
	key  string
	rows []int
}

func newKeyIndex(capacity int) *keyIndex {
	return &keyIndex{buckets: make(map[uint64][]keyEntry, capacity)}
}

// add records row under key and reports whether key was seen for the first time.
func (ix *keyIndex) add(key string, row int) bool {
	h := xxhash.Sum64String(key)
	bucket := ix.buckets[h]
	for i := range bucket {
		if bucket[i].key == key {
			bucket[i].rows = append(bucket[i].rows, row)
			return false
		}
	}
	ix.buckets[h] = append(bucket, keyEntry{key: key, rows: []int{row}})
	ix.size++
	return true
}

func (ix *keyIndex) lookup(key string) []int {
	for _, e := range ix.buckets[xxhash.Sum64String(key)] {
		if e.key == key {
			return e.rows
		}
	}
	return nil
}

// Len returns the number of distinct keys.
func (ix *keyIndex) Len() int { return ix.size }

// SampleKeys returns up to n distinct composite keys of cols in first-seen
// order, parts joined by "|". Used for join diagnostics.
func (t *Table) SampleKeys(cols []string, n int, kf KeyFunc) []string {
	idx, err := t.indices(cols)
	if err != nil || n <= 0 {
		return nil
	}
	if kf == nil {
		kf = FormatCell
	}
	seen := newKeyIndex(n)
	out := make([]string, 0, n)
	for i, r := range t.Rows {
		parts := make([]string, len(idx))
		for j, ix := range idx {
			parts[j] = kf(r[ix])
		}
		k := strings.Join(parts, "|")
		if seen.add(k, i) {
			out = append(out, k)
			if len(out) == n {
				break
			}
		}
	}
	return out
}
