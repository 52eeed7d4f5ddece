package snapshot

import (
	"fmt"
	"sort"
)

// ChangeKind classifies a single structural difference between two
// snapshot payloads.
type ChangeKind string

const (
	KindAdded   ChangeKind = "added"
	KindRemoved ChangeKind = "removed"
	KindChanged ChangeKind = "changed"
)

// Change is one entry in a Diff result, suitable for human display on the
// admin review surface. Old/New are nil when not applicable to Kind.
type Change struct {
	Path string     `json:"path"`
	Kind ChangeKind `json:"kind"`
	Old  any        `json:"old,omitempty"`
	New  any        `json:"new,omitempty"`
}

// Diff produces a structural diff between two normalized snapshot payloads.
// It is pure and is never consulted for drift detection — spec.md §4.D:
// hashes are authoritative there, this is purely for human review. The
// walk is deterministic: map keys are visited in sorted order and array
// elements are compared positionally, matching the Snapshotter's
// already-sorted list conventions (tools by name, resources by uri, etc.)
// so a pure append/remove at the end of a list reads as a single
// added/removed entry rather than a cascade of "changed" entries.
func Diff(oldPayload, newPayload map[string]any) []Change {
	var changes []Change
	walkDiff("", anyMap(oldPayload), anyMap(newPayload), &changes)
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

func anyMap(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}

func walkDiff(path string, oldV, newV any, out *[]Change) {
	switch o := oldV.(type) {
	case map[string]any:
		n, ok := newV.(map[string]any)
		if !ok {
			*out = append(*out, Change{Path: path, Kind: KindChanged, Old: oldV, New: newV})
			return
		}
		walkObject(path, o, n, out)
	case []any:
		n, ok := newV.([]any)
		if !ok {
			*out = append(*out, Change{Path: path, Kind: KindChanged, Old: oldV, New: newV})
			return
		}
		walkArray(path, o, n, out)
	default:
		if !jsonEqual(oldV, newV) {
			*out = append(*out, Change{Path: path, Kind: KindChanged, Old: oldV, New: newV})
		}
	}
}

func walkObject(path string, oldObj, newObj map[string]any, out *[]Change) {
	keys := make(map[string]struct{}, len(oldObj)+len(newObj))
	for k := range oldObj {
		keys[k] = struct{}{}
	}
	for k := range newObj {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		childPath := joinPath(path, k)
		oldV, oldOK := oldObj[k]
		newV, newOK := newObj[k]
		switch {
		case oldOK && !newOK:
			*out = append(*out, Change{Path: childPath, Kind: KindRemoved, Old: oldV})
		case !oldOK && newOK:
			*out = append(*out, Change{Path: childPath, Kind: KindAdded, New: newV})
		default:
			walkDiff(childPath, oldV, newV, out)
		}
	}
}

func walkArray(path string, oldArr, newArr []any, out *[]Change) {
	max := len(oldArr)
	if len(newArr) > max {
		max = len(newArr)
	}
	for i := 0; i < max; i++ {
		childPath := fmt.Sprintf("%s[%d]", path, i)
		switch {
		case i >= len(oldArr):
			*out = append(*out, Change{Path: childPath, Kind: KindAdded, New: newArr[i]})
		case i >= len(newArr):
			*out = append(*out, Change{Path: childPath, Kind: KindRemoved, Old: oldArr[i]})
		default:
			walkDiff(childPath, oldArr[i], newArr[i], out)
		}
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// jsonEqual compares two decoded JSON scalar values by their fmt.Sprint
// form, so a json.Number and a float64 are equal only when they print
// alike (json.Number("1") equals 1.0; json.Number("1.0") does not).
func jsonEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}
