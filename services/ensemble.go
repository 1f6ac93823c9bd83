package services

import (
	"sort"

	"ragdemo/models"
)

// rrfRankConstant dampens the influence of lower-ranked results in
// reciprocal rank fusion.
const rrfRankConstant = 60

// fuseRankings merges ranked result lists into a single list using weighted
// reciprocal rank fusion: each chunk scores sum(weight_i / (C + rank_i))
// over the lists it appears in. Ties keep the order of first appearance.
// The fused list is truncated to topN.
func fuseRankings(topN int, weights []float64, rankings ...[]models.ScoredChunk) []models.ScoredChunk {
	type fused struct {
		chunk models.Chunk
		score float64
		order int
	}
	byID := make(map[string]*fused)
	order := 0
	for li, ranking := range rankings {
		weight := 1.0
		if li < len(weights) {
			weight = weights[li]
		}
		for rank, sc := range ranking {
			f, ok := byID[sc.Chunk.ID]
			if !ok {
				f = &fused{chunk: sc.Chunk, order: order}
				order++
				byID[sc.Chunk.ID] = f
			}
			f.score += weight / float64(rrfRankConstant+rank+1)
		}
	}

	all := make([]*fused, 0, len(byID))
	for _, f := range byID {
		all = append(all, f)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].order < all[j].order
	})

	if topN <= 0 {
		topN = 5
	}
	if topN > len(all) {
		topN = len(all)
	}
	out := make([]models.ScoredChunk, 0, topN)
	for _, f := range all[:topN] {
		out = append(out, models.ScoredChunk{Chunk: f.chunk, Score: f.score})
	}
	return out
}
