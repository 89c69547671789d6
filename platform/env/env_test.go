package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookups(t *testing.T) {
	t.Setenv("EVAL_TEST_STRING", "x")
	t.Setenv("EVAL_TEST_DURATION", "1500ms")
	t.Setenv("EVAL_TEST_BOOL", "true")
	t.Setenv("EVAL_TEST_INT", "42")
	t.Setenv("EVAL_TEST_UINT", "7")
	t.Setenv("EVAL_TEST_FLOAT", "-0.5")

	assert.Equal(t, "x", String("EVAL_TEST_STRING", "d"))
	assert.Equal(t, "d", String("EVAL_TEST_UNSET", "d"))

	d, err := Duration("EVAL_TEST_DURATION", 0)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, d)

	b, err := Bool("EVAL_TEST_BOOL", false)
	require.NoError(t, err)
	assert.True(t, b)

	i, err := Int("EVAL_TEST_INT", 0)
	require.NoError(t, err)
	assert.Equal(t, 42, i)

	u, err := Uint64("EVAL_TEST_UINT", 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), u)

	f, err := Float64("EVAL_TEST_FLOAT", 0)
	require.NoError(t, err)
	assert.InDelta(t, -0.5, f, 1e-12)

	i, err = Int("EVAL_TEST_UNSET", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, i)
}

func TestLookupErrors(t *testing.T) {
	t.Setenv("EVAL_TEST_BAD", "nope")

	_, err := Duration("EVAL_TEST_BAD", 0)
	require.Error(t, err)
	_, err = Bool("EVAL_TEST_BAD", false)
	require.Error(t, err)
	_, err = Int("EVAL_TEST_BAD", 0)
	require.Error(t, err)
	_, err = Float64("EVAL_TEST_BAD", 0)
	require.Error(t, err)
	_, err = Uint64("EVAL_TEST_BAD", 0)
	require.ErrorContains(t, err, "EVAL_TEST_BAD")
}
