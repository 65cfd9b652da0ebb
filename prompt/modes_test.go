package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKnownModes(t *testing.T) {
	assert.Equal(t, ModeBugReport, Parse("bug_report"))
	assert.Equal(t, ModeViralClipGen, Parse("  VIRAL_CLIP_GEN "))
}

func TestParseUnknownFallsBack(t *testing.T) {
	assert.Equal(t, ModeGeneralDoc, Parse("tiktok_dance_rating"))
	assert.Equal(t, ModeGeneralDoc, Parse(""))
}

func TestLookupFlags(t *testing.T) {
	assert.True(t, Lookup(ModeSubtitleExtractor).SubtitleOnly)
	assert.True(t, Lookup(ModeViralClipGen).ProducesClips)
	assert.False(t, Lookup(ModeGeneralDoc).SubtitleOnly)
	assert.False(t, Lookup(ModeGeneralDoc).ProducesClips)
}

func TestAllStableOrder(t *testing.T) {
	defs := All()
	require.Len(t, defs, 7)
	assert.Equal(t, ModeGeneralDoc, defs[0].Mode)
	assert.Equal(t, ModeCharacterTracker, defs[6].Mode)
}

func TestRenderInterpolatesAndClearsMissing(t *testing.T) {
	out := Render(ModeBugReport, map[string]string{"title": "login crash"})
	assert.Contains(t, out, `"login crash"`)
	assert.NotContains(t, out, "{{")

	out = Render(ModeGeneralDoc, nil)
	assert.NotContains(t, out, "{{")
}

func TestTaskContextMentionsModeAndTitle(t *testing.T) {
	ctx := TaskContext(ModeSceneDetection, "demo day")
	assert.Contains(t, ctx, "Scene Detection")
	assert.Contains(t, ctx, "demo day")
}
