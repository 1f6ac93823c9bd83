package services

import (
	"testing"

	"ragdemo/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ranked(ids ...string) []models.ScoredChunk {
	out := make([]models.ScoredChunk, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.ScoredChunk{Chunk: models.Chunk{ID: id, Text: "text-" + id}})
	}
	return out
}

func idsOf(results []models.ScoredChunk) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Chunk.ID)
	}
	return out
}

func TestFuseRankingsAgreementWins(t *testing.T) {
	// "b" is ranked by both arms, so it must beat single-arm top hits.
	fused := fuseRankings(5, []float64{0.6, 0.4},
		ranked("a", "b", "c"),
		ranked("b", "d"),
	)
	require.NotEmpty(t, fused)
	assert.Equal(t, "b", fused[0].Chunk.ID)
}

func TestFuseRankingsWeightsBreakTies(t *testing.T) {
	// Same ranks on both sides; the heavier arm's top hit must come first.
	fused := fuseRankings(5, []float64{0.6, 0.4},
		ranked("kw", "shared"),
		ranked("vec", "shared"),
	)
	ids := idsOf(fused)
	require.Len(t, ids, 3)
	assert.Equal(t, "shared", ids[0])
	assert.Equal(t, "kw", ids[1])
	assert.Equal(t, "vec", ids[2])
}

func TestFuseRankingsTruncatesToTopN(t *testing.T) {
	fused := fuseRankings(2, []float64{0.6, 0.4},
		ranked("a", "b", "c", "d"),
		ranked("e", "f"),
	)
	assert.Len(t, fused, 2)
}

func TestFuseRankingsEmptyArms(t *testing.T) {
	assert.Empty(t, fuseRankings(5, []float64{0.6, 0.4}, nil, nil))

	fused := fuseRankings(5, []float64{0.6, 0.4}, ranked("a"), nil)
	require.Len(t, fused, 1)
	assert.Equal(t, "a", fused[0].Chunk.ID)
}

func TestFuseRankingsScoresDecrease(t *testing.T) {
	fused := fuseRankings(5, []float64{0.6, 0.4},
		ranked("a", "b", "c"),
		ranked("a", "c", "b"),
	)
	for i := 1; i < len(fused); i++ {
		assert.GreaterOrEqual(t, fused[i-1].Score, fused[i].Score)
	}
}
