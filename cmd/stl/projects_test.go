package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRoomSpecs(t *testing.T) {
	lines, err := parseRoomSpecs([]string{"Living Room=1", "Primary Bedroom = 2 @ $525.50", "Den=0"})
	require.NoError(t, err)
	require.Len(t, lines, 3)

	require.Equal(t, "Living Room", lines[0].Room)
	require.Equal(t, 1, lines[0].Quantity)
	require.Nil(t, lines[0].Price)

	require.Equal(t, "Primary Bedroom", lines[1].Room)
	require.Equal(t, 2, lines[1].Quantity)
	require.NotNil(t, lines[1].Price)
	require.Equal(t, "525.5", lines[1].Price.String())

	require.Equal(t, 0, lines[2].Quantity)
}

func TestParseRoomSpecsRejectsMalformed(t *testing.T) {
	for _, spec := range []string{"Office", "=2", "Office=two", "Office=1@free"} {
		_, err := parseRoomSpecs([]string{spec})
		require.Error(t, err, spec)
	}
}

func TestParseDayFlag(t *testing.T) {
	d, err := parseDayFlag("")
	require.NoError(t, err)
	require.Nil(t, d)

	d, err = parseDayFlag("2024-03-05")
	require.NoError(t, err)
	require.Equal(t, "2024-03-05", formatDay(d))

	_, err = parseDayFlag("03/05/2024")
	require.Error(t, err)
}
