package providers

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Makar0n1/art-automation/pkg/types"
)

func skeletonBlocks() []types.Block {
	return []types.Block{
		{ID: 0, Type: types.BlockH1, Heading: "Main Title"},
		{ID: 1, Type: types.BlockIntro},
		{ID: 2, Type: types.BlockH2, Heading: "First Section"},
		{ID: 3, Type: types.BlockH3, Heading: "Detail"},
		{ID: 4, Type: types.BlockH2, Heading: "Second Section"},
		{ID: 5, Type: types.BlockFAQ, Heading: "FAQ"},
		{ID: 6, Type: types.BlockConclusion, Heading: "Conclusion"},
	}
}

func TestSelectLinkBlocks(t *testing.T) {
	blocks := skeletonBlocks()

	tests := []struct {
		name    string
		links   []types.InternalLink
		wantIDs []int
	}{
		{
			name: "intro and conclusion share their single block",
			links: []types.InternalLink{
				{URL: "https://a.example", Position: types.LinkPositionIntro},
				{URL: "https://b.example", Position: types.LinkPositionIntro},
				{URL: "https://c.example", Position: types.LinkPositionConclusion},
			},
			wantIDs: []int{1, 1, 6},
		},
		{
			name: "body links take distinct sections in order",
			links: []types.InternalLink{
				{URL: "https://a.example", Position: types.LinkPositionBody},
				{URL: "https://b.example", Position: types.LinkPositionBody},
				{URL: "https://c.example", Position: types.LinkPositionBody},
			},
			wantIDs: []int{2, 3, 4},
		},
		{
			name: "any skips h1 and faq",
			links: []types.InternalLink{
				{URL: "https://a.example", Position: types.LinkPositionAny},
				{URL: "https://b.example", Position: types.LinkPositionAny},
			},
			wantIDs: []int{1, 2},
		},
		{
			name: "exhausted body positions fall back to intro",
			links: []types.InternalLink{
				{URL: "https://a.example", Position: types.LinkPositionBody},
				{URL: "https://b.example", Position: types.LinkPositionBody},
				{URL: "https://c.example", Position: types.LinkPositionBody},
				{URL: "https://d.example", Position: types.LinkPositionBody},
			},
			wantIDs: []int{2, 3, 4, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assignments := SelectLinkBlocks(tt.links, blocks)
			require.Len(t, assignments, len(tt.wantIDs))
			for i, a := range assignments {
				assert.Equal(t, tt.wantIDs[i], a.BlockID, "link %d", i)
				assert.Equal(t, tt.links[i].URL, a.Link.URL)
			}
		})
	}
}

func TestSelectLinkBlocksWithoutIntro(t *testing.T) {
	blocks := []types.Block{
		{ID: 0, Type: types.BlockH1, Heading: "Main Title"},
		{ID: 1, Type: types.BlockH2, Heading: "Only Section"},
		{ID: 2, Type: types.BlockConclusion, Heading: "Conclusion"},
	}
	links := []types.InternalLink{
		{URL: "https://a.example", Position: types.LinkPositionIntro},
	}

	// No intro block exists; the link still lands on an eligible block
	// instead of being dropped.
	assignments := SelectLinkBlocks(links, blocks)
	require.Len(t, assignments, 1)
	assert.Equal(t, 1, assignments[0].BlockID)
}

func TestContainsURL(t *testing.T) {
	text := "See [our guide](https://example.com/guide/) for details."
	assert.True(t, ContainsURL(text, "https://example.com/guide"))
	assert.True(t, ContainsURL(text, "https://example.com/guide/"))
	assert.False(t, ContainsURL(text, "https://example.com/other"))
}

func TestForceAppendMissingLinks(t *testing.T) {
	links := []types.InternalLink{
		{URL: "https://example.com/present", Anchor: "present"},
		{URL: "https://example.com/missing", Anchor: "missing page"},
		{URL: "https://example.com/bare", Anchorless: true},
	}
	text := "Intro mentioning [present](https://example.com/present) already.\n"

	got := ForceAppendMissingLinks(text, links)

	lines := strings.Split(got, "\n")
	assert.Equal(t, "[https://example.com/bare](https://example.com/bare)", lines[len(lines)-1])
	assert.Contains(t, got, "[missing page](https://example.com/missing)")
	// The present link is not duplicated.
	assert.Equal(t, 1, strings.Count(got, "https://example.com/present"))
}

func TestExtractMarkdownLinks(t *testing.T) {
	text := "Start [one](https://a.example) middle [two](https://b.example/x) and ![img](https://c.example/i.png)."
	links := ExtractMarkdownLinks(text)
	require.Len(t, links, 3)
	assert.Equal(t, MarkdownLink{Anchor: "one", URL: "https://a.example"}, links[0])
	assert.Equal(t, "https://b.example/x", links[1].URL)
}

func TestStripLeadingHeading(t *testing.T) {
	assert.Equal(t, "body text", stripLeadingHeading("## Heading\nbody text"))
	assert.Equal(t, "body text", stripLeadingHeading("body text"))
	assert.Equal(t, "", stripLeadingHeading("# only a heading"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 60))
	assert.Equal(t, strings.Repeat("a", 60), truncate(strings.Repeat("a", 61), 60))

	// The limit counts characters, not bytes, so multi-byte text is never
	// cut mid-rune.
	cut := truncate("q"+strings.Repeat("к", 70), 60)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, 60, len([]rune(cut)))
	assert.Equal(t, "приве", truncate("привет", 5))
	assert.Equal(t, "привет", truncate("привет", 6))
}
