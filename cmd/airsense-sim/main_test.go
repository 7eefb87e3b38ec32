package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/airsense-core/internal/simulator"
)

func TestParseWalks(t *testing.T) {
	walks, err := parseWalks("temperature=22:15:30:0.5, co2=600:400:2000:40")
	require.NoError(t, err)
	assert.Equal(t, map[string]simulator.Walk{
		"temperature": {Start: 22, Min: 15, Max: 30, Step: 0.5},
		"co2":         {Start: 600, Min: 400, Max: 2000, Step: 40},
	}, walks)
}

func TestParseWalks_Invalid(t *testing.T) {
	for _, list := range []string{
		"",
		"temperature",
		"=1:2:3:4",
		"temperature=1:2:3",
		"temperature=a:2:3:4",
	} {
		_, err := parseWalks(list)
		assert.Error(t, err, "params %q", list)
	}
}

func TestRun_Usage(t *testing.T) {
	ctx := context.Background()

	assert.Error(t, run(ctx, nil))
	assert.ErrorContains(t, run(ctx, []string{"thermostat"}), "unknown simulator")
	assert.ErrorContains(t, run(ctx, []string{"sensor"}), "-serial is required")
	assert.ErrorContains(t, run(ctx, []string{"device"}), "-serial is required")
}
