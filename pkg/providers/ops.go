package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"github.com/Makar0n1/art-automation/pkg/types"
)

// StructureInput carries the job configuration the structure operations
// prompt from.
type StructureInput struct {
	MainKeyword  string
	Language     string
	ArticleType  types.ArticleType
	Keywords     []string
	LSIKeywords  []string
	StyleComment string
	SerpEntries  []types.SerpEntry
}

// WriteInput carries everything needed to write one block.
type WriteInput struct {
	MainKeyword  string
	Language     string
	StyleComment string
	Block        types.Block
	PriorContent string
}

// LinkAssignment binds one internal link to a target block.
type LinkAssignment struct {
	Link    types.InternalLink
	BlockID int
}

// FixTask is one quality-review finding to act on.
type FixTask struct {
	BlockID    int      `json:"blockId"`
	Issues     []string `json:"issues"`
	Suggestion string   `json:"suggestion"`
}

// AnalyzeStructure runs the competitor structure analysis and returns the
// validated recommendation. Fewer than five recommended blocks or a
// malformed h1 count is an error; the queue retry policy decides what
// happens next.
func (c *LLMClient) AnalyzeStructure(ctx context.Context, in StructureInput) (*types.StructureAnalysis, error) {
	system, user := buildStructurePrompt(in)
	raw, err := c.Chat(ctx, []ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, 0.3, 4000)
	if err != nil {
		return nil, err
	}

	var analysis types.StructureAnalysis
	if err := json.Unmarshal([]byte(extractJSON(raw)), &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse structure analysis: %w", err)
	}

	blocks := analysis.RecommendedStructure
	if len(blocks) < 5 {
		return nil, fmt.Errorf("structure analysis returned %d blocks, need at least 5", len(blocks))
	}

	h1Count := 0
	for i := range blocks {
		if !blocks[i].Type.CarriesQuestions() {
			blocks[i].Questions = nil
		}
		if blocks[i].Type == types.BlockIntro {
			blocks[i].Heading = ""
		}
		if blocks[i].Type == types.BlockH1 {
			h1Count++
		}
		blocks[i].ID = i
	}
	if h1Count != 1 {
		return nil, fmt.Errorf("structure analysis returned %d h1 blocks, need exactly 1", h1Count)
	}
	analysis.RecommendedStructure = blocks
	return &analysis, nil
}

// EnrichBlocks rewrites block instructions into detailed briefs and adds
// research questions. Block ids are renumbered contiguously from 0.
func (c *LLMClient) EnrichBlocks(ctx context.Context, in StructureInput, blocks []types.Block) ([]types.Block, error) {
	system, user := buildEnrichPrompt(in, blocks)
	raw, err := c.Chat(ctx, []ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, 0.3, 4000)
	if err != nil {
		return nil, err
	}

	var enriched []types.Block
	if err := json.Unmarshal([]byte(extractJSON(raw)), &enriched); err != nil {
		return nil, fmt.Errorf("failed to parse enriched blocks: %w", err)
	}
	if len(enriched) != len(blocks) {
		return nil, fmt.Errorf("enrichment returned %d blocks, expected %d", len(enriched), len(blocks))
	}

	for i := range enriched {
		enriched[i].ID = i
		if !enriched[i].Type.CarriesQuestions() {
			enriched[i].Questions = nil
		}
		if len(enriched[i].Questions) > 5 {
			enriched[i].Questions = enriched[i].Questions[:5]
		}
		if enriched[i].Type == types.BlockIntro {
			enriched[i].Heading = ""
		}
	}
	return enriched, nil
}

// WriteBlock writes one block's markdown content with the article so far
// as style context. Any accidental leading heading is stripped.
func (c *LLMClient) WriteBlock(ctx context.Context, in WriteInput) (string, error) {
	system, user := buildWritePrompt(in)
	raw, err := c.Chat(ctx, []ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, 0.7, 2000)
	if err != nil {
		return "", err
	}
	return stripLeadingHeading(strings.TrimSpace(raw)), nil
}

// SelectLinkBlocks assigns internal links to blocks by position. Intro and
// conclusion links all land on the single intro/conclusion block; body
// links take distinct h2/h3 blocks in order; "any" links take distinct
// non-h1, non-faq blocks in order. No LLM call is involved.
func SelectLinkBlocks(links []types.InternalLink, blocks []types.Block) []LinkAssignment {
	introID, conclusionID := -1, -1
	var bodyIDs, anyIDs []int
	for _, b := range blocks {
		switch b.Type {
		case types.BlockIntro:
			if introID < 0 {
				introID = b.ID
			}
		case types.BlockConclusion:
			if conclusionID < 0 {
				conclusionID = b.ID
			}
		}
		if b.Type == types.BlockH2 || b.Type == types.BlockH3 {
			bodyIDs = append(bodyIDs, b.ID)
		}
		if b.Type != types.BlockH1 && b.Type != types.BlockFAQ {
			anyIDs = append(anyIDs, b.ID)
		}
	}

	used := make(map[int]bool)
	var assignments []LinkAssignment
	nextBody, nextAny := 0, 0

	for _, link := range links {
		target := -1
		switch link.Position {
		case types.LinkPositionIntro:
			target = introID
		case types.LinkPositionConclusion:
			target = conclusionID
		case types.LinkPositionBody:
			for nextBody < len(bodyIDs) && used[bodyIDs[nextBody]] {
				nextBody++
			}
			if nextBody < len(bodyIDs) {
				target = bodyIDs[nextBody]
				used[target] = true
			}
		default: // any
			for nextAny < len(anyIDs) && used[anyIDs[nextAny]] {
				nextAny++
			}
			if nextAny < len(anyIDs) {
				target = anyIDs[nextAny]
				used[target] = true
			}
		}
		if target < 0 {
			// Nowhere matching the constraint; fall back to the intro block,
			// or to the first eligible block when the structure has no intro,
			// so the link is never silently dropped.
			target = introID
			if target < 0 && len(anyIDs) > 0 {
				target = anyIDs[0]
			}
		}
		if target >= 0 {
			assignments = append(assignments, LinkAssignment{Link: link, BlockID: target})
		}
	}
	return assignments
}

// InsertLinks rewrites one block's markdown to incorporate the given links
// verbatim. Every URL is verified in the result (trailing slash optional);
// missing links are force-appended as their own paragraph.
func (c *LLMClient) InsertLinks(ctx context.Context, content string, links []types.InternalLink) (string, error) {
	system, user := buildInsertLinksPrompt(content, links)
	raw, err := c.Chat(ctx, []ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, 0.4, 2000)
	if err != nil {
		return "", err
	}
	return ForceAppendMissingLinks(strings.TrimSpace(raw), links), nil
}

// ForceAppendMissingLinks appends any link whose URL does not occur in the
// text as a [anchor](url) paragraph of its own.
func ForceAppendMissingLinks(text string, links []types.InternalLink) string {
	for _, link := range links {
		if ContainsURL(text, link.URL) {
			continue
		}
		text = strings.TrimRight(text, "\n") + "\n\n" + fmt.Sprintf("[%s](%s)", link.AnchorText(), link.URL)
	}
	return text
}

// ContainsURL reports whether text contains the URL, treating presence or
// absence of a trailing slash as equivalent.
func ContainsURL(text, url string) bool {
	trimmed := strings.TrimSuffix(url, "/")
	return strings.Contains(text, trimmed) || strings.Contains(text, trimmed+"/")
}

// ReviewArticle runs the quality review. When the model returns fewer
// than two usable findings, synthetic tasks on random content blocks pad
// the list to at least three so the fix pass always has work.
func (c *LLMClient) ReviewArticle(ctx context.Context, blocks []types.Block) ([]FixTask, error) {
	system, user := buildReviewPrompt(blocks)
	raw, err := c.Chat(ctx, []ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, 0.3, 2000)
	if err != nil {
		return nil, err
	}

	var tasks []FixTask
	if err := json.Unmarshal([]byte(extractJSON(raw)), &tasks); err != nil {
		return nil, fmt.Errorf("failed to parse review tasks: %w", err)
	}

	if len(tasks) < 2 {
		var candidates []int
		taken := make(map[int]bool)
		for _, task := range tasks {
			taken[task.BlockID] = true
		}
		for _, b := range blocks {
			if b.Type.CarriesQuestions() && b.Content != "" && !taken[b.ID] {
				candidates = append(candidates, b.ID)
			}
		}
		rand.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
		for _, id := range candidates {
			if len(tasks) >= 3 {
				break
			}
			tasks = append(tasks, FixTask{
				BlockID:    id,
				Issues:     []string{"Content could be more specific and actionable"},
				Suggestion: "Tighten the prose and add concrete detail",
			})
		}
	}
	return tasks, nil
}

// FixBlock rewrites a block's content to address the listed issues. Any
// markdown link present before the fix but missing afterwards is
// force-appended so link integrity survives the rewrite.
func (c *LLMClient) FixBlock(ctx context.Context, block types.Block, issues []string, suggestion string) (string, error) {
	inventory := ExtractMarkdownLinks(block.Content)

	system, user := buildFixPrompt(block, issues, suggestion)
	raw, err := c.Chat(ctx, []ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, 0.4, 2000)
	if err != nil {
		return "", err
	}

	fixed := strings.TrimSpace(raw)
	for _, link := range inventory {
		if !ContainsURL(fixed, link.URL) {
			fixed = strings.TrimRight(fixed, "\n") + "\n\n" + fmt.Sprintf("[%s](%s)", link.Anchor, link.URL)
		}
	}
	return fixed, nil
}

// GenerateSEO produces the SEO title and description, truncated to 60 and
// 160 characters. Any failure falls back to deterministic metadata built
// from the main keyword.
func (c *LLMClient) GenerateSEO(ctx context.Context, mainKeyword, article string) (title, description string) {
	system, user := buildSEOPrompt(mainKeyword, article)
	raw, err := c.Chat(ctx, []ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}, 0.3, 300)
	if err == nil {
		var meta struct {
			Title       string `json:"title"`
			Description string `json:"description"`
		}
		if jsonErr := json.Unmarshal([]byte(extractJSON(raw)), &meta); jsonErr == nil && meta.Title != "" {
			return truncate(meta.Title, 60), truncate(meta.Description, 160)
		}
	}
	return truncate(mainKeyword, 60), truncate("Comprehensive guide about "+mainKeyword, 160)
}

// MarkdownLink is one [anchor](url) occurrence in markdown text.
type MarkdownLink struct {
	Anchor string
	URL    string
}

var markdownLinkRe = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)\)`)

// ExtractMarkdownLinks lists every markdown link in the text in order.
func ExtractMarkdownLinks(text string) []MarkdownLink {
	matches := markdownLinkRe.FindAllStringSubmatch(text, -1)
	links := make([]MarkdownLink, 0, len(matches))
	for _, m := range matches {
		links = append(links, MarkdownLink{Anchor: m[1], URL: m[2]})
	}
	return links
}

// stripLeadingHeading drops an accidental markdown heading on the first
// line of LLM output.
func stripLeadingHeading(s string) string {
	lines := strings.SplitN(s, "\n", 2)
	if strings.HasPrefix(lines[0], "#") {
		if len(lines) == 1 {
			return ""
		}
		return strings.TrimSpace(lines[1])
	}
	return s
}

// truncate cuts s to at most max characters, never splitting a rune.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
