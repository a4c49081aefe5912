package services

import (
	"strings"
)

// DedupeMissingSets collapses near-duplicate set candidates within one batch.
// Grouping key is the case/space-insensitive title plus the version signature;
// within a group the image lists are unioned in first-seen order and the
// first-seen translated title stays canonical. Idempotent: deduping an
// already-deduped batch changes nothing.
func DedupeMissingSets(candidates []SetCandidate) []SetCandidate {
	type slot struct{ idx int }
	index := make(map[string]slot, len(candidates))
	out := make([]SetCandidate, 0, len(candidates))

	for _, cand := range candidates {
		key := normalizeForMatch(cand.Title) + "\x00" + strings.TrimSpace(cand.VersionSignature)
		if s, ok := index[key]; ok {
			merged := &out[s.idx]
			merged.Images = unionImages(merged.Images, cand.Images)
			if merged.TranslatedTitle == "" {
				merged.TranslatedTitle = cand.TranslatedTitle
			}
			continue
		}
		copied := cand
		copied.Images = unionImages(nil, cand.Images)
		index[key] = slot{idx: len(out)}
		out = append(out, copied)
	}
	return out
}

// DedupeCardCandidates collapses card candidates by exact (code, title). Two
// candidates sharing a code but carrying different titles are a real data
// inconsistency and are deliberately kept apart for a human to resolve.
func DedupeCardCandidates(candidates []CardCandidate) []CardCandidate {
	index := make(map[string]int, len(candidates))
	out := make([]CardCandidate, 0, len(candidates))

	for _, cand := range candidates {
		key := strings.ToUpper(strings.TrimSpace(cand.Code)) + "\x00" + strings.TrimSpace(cand.Title)
		if idx, ok := index[key]; ok {
			if out[idx].Image == "" {
				out[idx].Image = cand.Image
			}
			continue
		}
		index[key] = len(out)
		out = append(out, cand)
	}
	return out
}

// unionImages merges URL lists preserving first-seen order without duplicates.
func unionImages(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]string, 0, len(existing)+len(incoming))
	for _, list := range [][]string{existing, incoming} {
		for _, u := range list {
			if u == "" {
				continue
			}
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			out = append(out, u)
		}
	}
	return out
}
