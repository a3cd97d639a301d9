package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeHash(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "prefixed hex", in: "0xAaBb", want: "aabb"},
		{name: "upper hex", in: "AABB", want: "aabb"},
		{name: "padded", in: "  aabb\n", want: "aabb"},
		{name: "base64", in: "3q2+7w==", want: "deadbeef"},
		{name: "base64 loose trailing bits", in: "zz==", want: "cf"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeHash(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeHashRejectsGarbage(t *testing.T) {
	_, err := NormalizeHash("")
	require.ErrorIs(t, err, ErrEmptyHash)

	_, err = NormalizeHash("not a hash!")
	require.Error(t, err)

	_, err = NormalizeHash("zz")
	require.Error(t, err)
}
