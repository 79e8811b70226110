package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDates(t *testing.T) {
	dates, err := parseDates(nil, "30-04-2023", "02-05-2023")
	require.NoError(t, err)
	require.Len(t, dates, 3)
	assert.Equal(t, "01-05-2023", dates[1].String())

	dates, err = parseDates([]string{"03-05-2023"}, "", "")
	require.NoError(t, err)
	require.Len(t, dates, 1)

	dates, err = parseDates(nil, "", "")
	require.NoError(t, err)
	assert.Empty(t, dates)

	_, err = parseDates(nil, "05-05-2023", "01-05-2023")
	assert.Error(t, err)

	_, err = parseDates([]string{"2023-05-03"}, "", "")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}
