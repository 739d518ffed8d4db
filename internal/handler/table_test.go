package handler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/o2ensemble/o2lite-go/internal/wire"
)

func noop(*wire.Decoder, string, string, any) {}

func TestPrefixMatchBoundary(t *testing.T) {
	tbl := New()
	tbl.Add("/a/b", "", false, noop, nil)

	cases := []struct {
		addr  string
		match bool
	}{
		{"/a/b", true},
		{"/a/b/c", true},
		{"/a/b/c/d", true},
		{"/a/bc", false},
		{"/a/bcd", false},
		{"/a", false},
	}
	for _, c := range cases {
		_, ok := tbl.Match(Strip(c.addr), "")
		require.Equal(t, c.match, ok, "addr=%s", c.addr)
	}
}

func TestFullMatchRequiresExactAddress(t *testing.T) {
	tbl := New()
	tbl.Add("!_o2/id", "i", true, noop, nil)

	_, ok := tbl.Match(Strip("!_o2/id"), "i")
	require.True(t, ok)

	_, ok = tbl.Match(Strip("!_o2/id"), "f")
	require.False(t, ok, "typespec mismatch on full match must not fire")

	_, ok = tbl.Match(Strip("!_o2/id/extra"), "i")
	require.False(t, ok, "full match must not accept a longer address")
}

func TestFirstRegisteredMatchWins(t *testing.T) {
	tbl := New()
	var fired string
	tbl.Add("/a", "", false, func(*wire.Decoder, string, string, any) { fired = "first" }, nil)
	tbl.Add("/a", "", false, func(*wire.Decoder, string, string, any) { fired = "second" }, nil)

	e, ok := tbl.Match(Strip("/a/b"), "")
	require.True(t, ok)
	e.Fn(nil, "", "", nil)
	require.Equal(t, "first", fired)
}

func TestTypespecAbsentMatchesAnyTypespec(t *testing.T) {
	tbl := New()
	tbl.Add("/x", "", true, noop, nil)
	_, ok := tbl.Match(Strip("/x"), "ifs")
	require.True(t, ok)
}

func TestUnmatchedAddressReturnsFalse(t *testing.T) {
	tbl := New()
	tbl.Add("/a/b", "", true, noop, nil)
	_, ok := tbl.Match(Strip("/a/b/c"), "")
	require.False(t, ok)
}
