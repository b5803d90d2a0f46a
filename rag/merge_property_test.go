package rag

import (
	"testing"

	"pgregory.net/rapid"
)

func genScoredPassages(t *rapid.T) []ScoredPassage {
	n := rapid.IntRange(0, 30).Draw(t, "n")
	out := make([]ScoredPassage, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ScoredPassage{
			Passage: Passage{ID: rapid.StringMatching(`p[0-9]{1,2}`).Draw(t, "id")},
			Score:   rapid.Float64Range(0, 1).Draw(t, "score"),
		})
	}
	return out
}

// Merging a set with itself must not change its identifier set and must keep
// the maximum score per identifier.
func TestMergePassagesIdempotentProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		passages := genScoredPassages(t)

		once := mergePassages(nil, passages)
		twice := mergePassages(once, passages)

		if len(once) != len(twice) {
			t.Fatalf("re-merge changed cardinality: %d vs %d", len(once), len(twice))
		}
		for i := range once {
			if once[i].ID != twice[i].ID || once[i].Score != twice[i].Score {
				t.Fatalf("re-merge changed element %d", i)
			}
		}
	})
}

// The merged set is the union of both inputs, scored with the per-identifier
// maximum, with no duplicate identifiers.
func TestMergePassagesUnionMaxProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genScoredPassages(t)
		b := genScoredPassages(t)

		merged := mergePassages(mergePassages(nil, a), b)

		wantMax := map[string]float64{}
		for _, p := range append(append([]ScoredPassage(nil), a...), b...) {
			if s, ok := wantMax[p.ID]; !ok || p.Score > s {
				wantMax[p.ID] = p.Score
			}
		}

		seen := map[string]bool{}
		for _, p := range merged {
			if seen[p.ID] {
				t.Fatalf("duplicate identifier %q in merged set", p.ID)
			}
			seen[p.ID] = true
			if p.Score != wantMax[p.ID] {
				t.Fatalf("identifier %q scored %v, want max %v", p.ID, p.Score, wantMax[p.ID])
			}
		}
		if len(merged) != len(wantMax) {
			t.Fatalf("merged set has %d identifiers, union has %d", len(merged), len(wantMax))
		}
	})
}
