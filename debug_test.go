package o2lite

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebugAllExcludesBytes(t *testing.T) {
	assert.True(t, DebugAll.Has(DebugSends))
	assert.True(t, DebugAll.Has(DebugReceives))
	assert.True(t, DebugAll.Has(DebugDiscovery))
	assert.True(t, DebugAll.Has(DebugGeneral))
	assert.False(t, DebugAll.Has(DebugBytes))
}

func TestParseDebugFlagsRecognizesEachLetter(t *testing.T) {
	assert.True(t, ParseDebugFlags("b").Has(DebugBytes))
	assert.True(t, ParseDebugFlags("s").Has(DebugSends))
	assert.True(t, ParseDebugFlags("r").Has(DebugReceives))
	assert.True(t, ParseDebugFlags("d").Has(DebugDiscovery))
	assert.True(t, ParseDebugFlags("g").Has(DebugGeneral))
}

func TestParseDebugFlagsAIncludesBytesOnlyIfSpelledOut(t *testing.T) {
	flags := ParseDebugFlags("a")
	assert.False(t, flags.Has(DebugBytes))
	flags = ParseDebugFlags("ab")
	assert.True(t, flags.Has(DebugBytes))
}

func TestParseDebugFlagsIgnoresUnknownLetters(t *testing.T) {
	assert.Equal(t, DebugFlags(0), ParseDebugFlags("xyz"))
}
