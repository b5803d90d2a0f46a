package rag

import "sort"

// Merging rule for every multi-source mode: when two scored items share an
// identifier the surviving score is the maximum of the two. The rule is
// idempotent, so merging a result set with itself changes nothing.

func mergePassages(dst []ScoredPassage, src []ScoredPassage) []ScoredPassage {
	index := make(map[string]int, len(dst))
	for i, p := range dst {
		index[p.ID] = i
	}
	for _, p := range src {
		if i, ok := index[p.ID]; ok {
			if p.Score > dst[i].Score {
				dst[i].Score = p.Score
			}
			continue
		}
		index[p.ID] = len(dst)
		dst = append(dst, p)
	}
	return dst
}

func mergeEntities(dst []ScoredEntity, src []ScoredEntity) []ScoredEntity {
	index := make(map[string]int, len(dst))
	for i, e := range dst {
		index[e.ID] = i
	}
	for _, e := range src {
		if i, ok := index[e.ID]; ok {
			if e.Score > dst[i].Score {
				dst[i].Score = e.Score
			}
			continue
		}
		index[e.ID] = len(dst)
		dst = append(dst, e)
	}
	return dst
}

// sortPassagesByScore orders passages descending by score. The sort is stable
// so equal scores keep their retrieval order.
func sortPassagesByScore(passages []ScoredPassage) {
	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Score > passages[j].Score
	})
}

func sortEntitiesByScore(entities []ScoredEntity) {
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Score > entities[j].Score
	})
}

// uniqueStrings deduplicates ids preserving first-seen order.
func uniqueStrings(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
