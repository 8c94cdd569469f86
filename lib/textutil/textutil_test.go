package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	require.Equal(t, "lakewoodchurch", NormalizeName("  Lakewood\tChurch \n"))
}

func TestContainsFold(t *testing.T) {
	require.True(t, ContainsFold("Church of the Highlands", "HIGHLANDS"))
	require.False(t, ContainsFold("Church of the Highlands", "valley"))
}

func TestSimilarPairs(t *testing.T) {
	pairs := SimilarPairs([]string{
		"Lakewood Church",
		"LakewoodChurch",
		"Gateway Church",
		"Elevation Church",
		"Lakewood Church",
	}, 0.95)

	// whitespace and case differences normalize to the same name, identical names are skipped
	require.Len(t, pairs, 2)
	for _, p := range pairs {
		require.Equal(t, 1.0, p.Similarity)
		require.Contains(t, []string{"Lakewood Church", "LakewoodChurch"}, p.Left)
		require.Contains(t, []string{"Lakewood Church", "LakewoodChurch"}, p.Right)
	}

	require.Empty(t, SimilarPairs([]string{"Gateway Church", "Elevation Church"}, 0.95))
}
