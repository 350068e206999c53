package cmd

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiva/courierquote/internal/model"
)

func TestParseAt(t *testing.T) {
	got, err := parseAt("at", "")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = parseAt("at", "2026-03-10T23:30:00Z")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)))

	_, err = parseAt("deliver-by", "tomorrow")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--deliver-by")
}

func TestFixedDistance(t *testing.T) {
	res, err := fixedDistance(12.5).Resolve(context.Background(), model.Location{Key: "A"}, model.Location{Key: "B"})
	require.NoError(t, err)
	assert.Equal(t, 12.5, res.DistanceMiles)
	assert.Equal(t, model.ProviderClient, res.Provider)
	assert.False(t, res.FallbackUsed)
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, map[string]int{"miles": 40}))
	assert.JSONEq(t, `{"miles":40}`, buf.String())
}

func TestRootRegistersCommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"quote", "price", "rates"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}
