package helpers

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSHA256Parts(t *testing.T) {
	t.Parallel()

	t.Run("single part", func(t *testing.T) {
		// sha256 of a single NUL byte
		require.Equal(t, "6e340b9cffb37a989ca544e6bb780a2c78901d3fb33738768511a30617afa01d", SHA256Parts(""))
		require.Len(t, SHA256Parts("hello world"), 64)
	})

	t.Run("separator prevents collisions", func(t *testing.T) {
		require.NotEqual(t, SHA256Parts("ab", "c"), SHA256Parts("a", "bc"))
	})

	t.Run("stable", func(t *testing.T) {
		require.Equal(t, SHA256Parts("x", "timeseries"), SHA256Parts("x", "timeseries"))
		require.NotEqual(t, SHA256Parts("x", "timeseries"), SHA256Parts("x", "scalar"))
	})
}

func TestShortID(t *testing.T) {
	t.Parallel()
	require.Equal(t, "abc", ShortID("abc"))
	require.Equal(t, "e3b0c44298fc", ShortID("e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"))
}
