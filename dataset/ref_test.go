package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		key  string
		want ResourceRef
	}{
		{name: "three parts", key: "node/12/7", want: ResourceRef{ResourceType: "node", ResourceID: 12, AttrID: 7}},
		{name: "network qualified", key: "3/link/5/9", want: ResourceRef{NetworkID: 3, ResourceType: "link", ResourceID: 5, AttrID: 9}},
		{name: "case and slashes", key: " /Node/1/2/ ", want: ResourceRef{ResourceType: "node", ResourceID: 1, AttrID: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseKey(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := ParseKey(got.Key())
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestParseKeyInvalid(t *testing.T) {
	t.Parallel()
	for _, key := range []string{"", "node/1", "node/x/2", "a/node/1/2", "node/1/2/3/4", "/1/2"} {
		_, err := ParseKey(key)
		require.ErrorIs(t, err, ErrInvalidKey, key)
	}
}
