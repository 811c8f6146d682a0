package validate

import (
	"fmt"
	"reflect"
	"slices"

	"adqa/internal/domain"
)

// CompareTolerant performs partial equality between a snapshot and a live
// document. Only keys present in the snapshot are compared; nested objects
// recurse with the same rules. Returns snapshot-only keys (warnings) and
// value diffs (failures).
func CompareTolerant(expected, actual map[string]any, dynamicKeys []string) (missing []string, diffs []domain.FieldDiff) {
	return compareAt("", expected, actual, dynamicKeys)
}

func compareAt(prefix string, expected, actual map[string]any, dynamicKeys []string) (missing []string, diffs []domain.FieldDiff) {
	for key, want := range expected {
		if slices.Contains(dynamicKeys, key) {
			continue
		}
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		got, ok := actual[key]
		if !ok {
			missing = append(missing, path)
			continue
		}

		wantMap, wantIsMap := want.(map[string]any)
		gotMap, gotIsMap := got.(map[string]any)
		if wantIsMap && gotIsMap {
			m, d := compareAt(path, wantMap, gotMap, dynamicKeys)
			missing = append(missing, m...)
			diffs = append(diffs, d...)
			continue
		}

		if !looselyEqual(want, got) {
			diffs = append(diffs, domain.FieldDiff{Path: path, Expected: want, Actual: got})
		}
	}
	return missing, diffs
}

// looselyEqual tolerates the numeric-type drift JSON decoding introduces.
func looselyEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
