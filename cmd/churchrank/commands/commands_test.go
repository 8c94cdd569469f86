package commands

import (
	"os"
	"path/filepath"
	"testing"

	"churchrank/internal/config"

	"github.com/stretchr/testify/require"
)

func TestYearsFromFlags(t *testing.T) {
	cfg = config.Defaults

	years, err := yearsFromFlags(0, 0)
	require.NoError(t, err)
	require.Nil(t, years)

	years, err = yearsFromFlags(2022, 0)
	require.NoError(t, err)
	require.Equal(t, []int{2022, 2023, 2024}, years)

	years, err = yearsFromFlags(0, 2016)
	require.NoError(t, err)
	require.Equal(t, []int{2015, 2016}, years)

	_, err = yearsFromFlags(2024, 2020)
	require.Error(t, err)
}

func TestReadPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"consolidatedData": [{"name": "Life.Church", "location": "Edmond, OK", "pastor": "Craig Groeschel",
			"data": [{"year": 2024, "attendance": 1500, "ranking": 1}]}],
		"errors": [{"year": 2020, "message": "listing source unavailable"}]
	}`), 0600))

	result, err := readPayload(path)
	require.NoError(t, err)
	require.Len(t, result.Entities, 1)
	require.Equal(t, 2024, result.Entities[0].Observations[0].Year)
	require.Equal(t, 2020, result.Errors[0].Year)

	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))
	_, err = readPayload(path)
	require.Error(t, err)
}
