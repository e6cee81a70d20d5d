package cmd

import (
	"testing"

	"tradesync/internal/broker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderKind(t *testing.T) {
	for _, k := range orderKinds {
		got, err := parseOrderKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := parseOrderKind("trailing_stop")
	assert.Error(t, err)
}

func TestRootCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "track", "sync", "connection"} {
		assert.True(t, names[want], want)
	}

	track, _, err := rootCmd.Find([]string{"track"})
	require.NoError(t, err)
	assert.Equal(t, string(broker.OrderKindMarket), track.Flag("kind").DefValue)
}
