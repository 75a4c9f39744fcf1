package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeKey(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  Acme  Anvil ", "acme anvil"},
		{"USB-C\tHub\n2m", "usb-c hub 2m"},
		{"already normal", "already normal"},
		{"", ""},
	}
	for _, c := range cases {
		require.Equal(t, c.want, NormalizeKey(c.in), "input %q", c.in)
	}
}

func TestCollapseSpace(t *testing.T) {
	require.Equal(t, "Keeps Casing", CollapseSpace("  Keeps\n\tCasing  "))
	require.Equal(t, "", CollapseSpace("   "))
}

func TestMatchAny(t *testing.T) {
	markers := []string{"sold out", "unavailable"}
	require.True(t, MatchAny("SOLD  OUT", markers))
	require.True(t, MatchAny("Currently Unavailable online", markers))
	require.False(t, MatchAny("In stock", markers))
	require.False(t, MatchAny("anything", nil))
}
