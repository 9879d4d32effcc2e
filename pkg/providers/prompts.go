package providers

import (
	"fmt"
	"strings"

	"github.com/Makar0n1/art-automation/pkg/types"
)

const maxSerpTextForPrompt = 1500 // per-competitor body excerpt cap

// buildStructurePrompt asks for a competitor analysis and a recommended
// block structure as strict JSON.
func buildStructurePrompt(in StructureInput) (system, user string) {
	system = `You are an SEO content strategist. Analyze competitor article structures and design the optimal structure for a new article.
Respond with a single JSON object and nothing else:
{
  "averageWordCount": <int>,
  "commonPatterns": [<string>],
  "strengths": [<string>],
  "weaknesses": [<string>],
  "recommendedStructure": [
    {"id": <int>, "type": "h1"|"intro"|"h2"|"h3"|"conclusion"|"faq", "heading": <string>, "instruction": <string>, "lsiKeywords": [<string>], "questions": [<string>]}
  ]
}
Rules: exactly one "h1" block; one "intro" block directly after it; at least 5 blocks total; 0-3 short research questions per content block.`

	var sb strings.Builder
	fmt.Fprintf(&sb, "Main keyword: %s\nLanguage: %s\nArticle type: %s\n", in.MainKeyword, in.Language, in.ArticleType)
	if len(in.Keywords) > 0 {
		fmt.Fprintf(&sb, "Extra keywords: %s\n", strings.Join(in.Keywords, ", "))
	}
	if len(in.LSIKeywords) > 0 {
		fmt.Fprintf(&sb, "LSI keywords: %s\n", strings.Join(in.LSIKeywords, ", "))
	}
	if in.StyleComment != "" {
		fmt.Fprintf(&sb, "Style notes: %s\n", in.StyleComment)
	}
	sb.WriteString("\nCompetitor pages:\n")
	for _, entry := range in.SerpEntries {
		if entry.Error != "" {
			continue
		}
		fmt.Fprintf(&sb, "\n--- #%d %s (%d words)\n", entry.Position, entry.Title, entry.WordCount)
		for _, h := range entry.Headings {
			sb.WriteString(h)
			sb.WriteByte('\n')
		}
		if entry.Text != "" {
			excerpt := entry.Text
			if len(excerpt) > maxSerpTextForPrompt {
				excerpt = excerpt[:maxSerpTextForPrompt]
			}
			fmt.Fprintf(&sb, "Excerpt: %s\n", excerpt)
		}
	}
	return system, sb.String()
}

// buildEnrichPrompt asks for detailed writing instructions and research
// questions per block.
func buildEnrichPrompt(in StructureInput, blocks []types.Block) (system, user string) {
	system = `You are an SEO content strategist. For each block of the planned article, rewrite its "instruction" to be a detailed writing brief and add 0-5 short research questions that would improve the block with factual data.
Respond with a single JSON array of blocks in the same order, same shape as the input, and nothing else. Blocks of type "h1", "intro", "conclusion" and "faq" must have no questions.`

	var sb strings.Builder
	fmt.Fprintf(&sb, "Main keyword: %s\nLanguage: %s\nArticle type: %s\n", in.MainKeyword, in.Language, in.ArticleType)
	if in.StyleComment != "" {
		fmt.Fprintf(&sb, "Style notes: %s\n", in.StyleComment)
	}
	sb.WriteString("\nBlocks:\n")
	sb.WriteString(marshalBlocks(blocks))
	return system, sb.String()
}

// buildWritePrompt asks for the markdown content of a single block, using
// everything written so far as style context.
func buildWritePrompt(in WriteInput) (system, user string) {
	system = fmt.Sprintf(`You are a professional writer producing an article in %s about %q.
Write ONLY the body content of the requested block in markdown. Do not repeat the block heading, do not add a leading heading line, do not write content for other blocks.`, in.Language, in.MainKeyword)

	var sb strings.Builder
	switch in.Block.Type {
	case types.BlockIntro:
		sb.WriteString("Write the article introduction: hook the reader and preview the article. 2-3 short paragraphs.\n")
	case types.BlockConclusion:
		fmt.Fprintf(&sb, "Write the conclusion block %q: summarize the key takeaways and close with a clear final thought.\n", in.Block.Heading)
	case types.BlockFAQ:
		fmt.Fprintf(&sb, "Write the FAQ block %q: 4-6 question-and-answer pairs, each question as bold text followed by a concise answer.\n", in.Block.Heading)
	case types.BlockH1:
		sb.WriteString("Write a single-sentence standfirst for the article title. One sentence only.\n")
	default:
		fmt.Fprintf(&sb, "Write the section %q.\n", in.Block.Heading)
	}
	if in.Block.Instruction != "" {
		fmt.Fprintf(&sb, "Brief: %s\n", in.Block.Instruction)
	}
	if len(in.Block.LSIKeywords) > 0 {
		fmt.Fprintf(&sb, "Work in these terms naturally: %s\n", strings.Join(in.Block.LSIKeywords, ", "))
	}
	for _, qa := range in.Block.AnsweredQuestions {
		fmt.Fprintf(&sb, "Verified fact (source %s): Q: %s A: %s\n", qa.Source, qa.Question, qa.Answer)
	}
	if in.StyleComment != "" {
		fmt.Fprintf(&sb, "Style notes: %s\n", in.StyleComment)
	}
	if in.PriorContent != "" {
		sb.WriteString("\nArticle so far (match its tone and avoid repetition):\n")
		sb.WriteString(in.PriorContent)
	}
	return system, sb.String()
}

// buildInsertLinksPrompt asks for a rewrite of one block that weaves the
// assigned links in verbatim.
func buildInsertLinksPrompt(content string, links []types.InternalLink) (system, user string) {
	system = `You are an editor. Rewrite the given markdown block so it naturally incorporates every listed link as a markdown link, keeping the anchor text and URL EXACTLY as given. Do not drop or alter any other content. Respond with the rewritten markdown only.`

	var sb strings.Builder
	sb.WriteString("Links to incorporate:\n")
	for _, l := range links {
		fmt.Fprintf(&sb, "- [%s](%s) (display: %s)\n", l.AnchorText(), l.URL, l.DisplayType)
	}
	sb.WriteString("\nBlock content:\n")
	sb.WriteString(content)
	return system, sb.String()
}

// buildReviewPrompt asks for a quality review as a JSON task list.
func buildReviewPrompt(blocks []types.Block) (system, user string) {
	system = `You are a senior editor reviewing an article block by block. Identify blocks with concrete quality issues (thin content, repetition, missing transitions, factual vagueness, keyword stuffing).
Respond with a single JSON array and nothing else:
[{"blockId": <int>, "issues": [<string>], "suggestion": <string>}]`

	return system, "Article blocks:\n" + marshalBlocks(blocks)
}

// buildFixPrompt asks for a rewrite of one block addressing listed issues.
func buildFixPrompt(block types.Block, issues []string, suggestion string) (system, user string) {
	system = `You are a senior editor. Rewrite the given markdown block to address every listed issue. Keep all markdown links exactly as they are. Respond with the rewritten markdown only.`

	var sb strings.Builder
	fmt.Fprintf(&sb, "Block heading: %s\nIssues:\n", block.Heading)
	for _, issue := range issues {
		fmt.Fprintf(&sb, "- %s\n", issue)
	}
	if suggestion != "" {
		fmt.Fprintf(&sb, "Suggestion: %s\n", suggestion)
	}
	sb.WriteString("\nBlock content:\n")
	sb.WriteString(block.Content)
	return system, sb.String()
}

// buildSEOPrompt asks for SEO metadata as JSON.
func buildSEOPrompt(mainKeyword, article string) (system, user string) {
	system = `You are an SEO specialist. Produce metadata for the article.
Respond with a single JSON object and nothing else: {"title": <string up to 60 chars>, "description": <string up to 160 chars>}`

	excerpt := article
	if len(excerpt) > 4000 {
		excerpt = excerpt[:4000]
	}
	return system, fmt.Sprintf("Main keyword: %s\n\nArticle:\n%s", mainKeyword, excerpt)
}

func marshalBlocks(blocks []types.Block) string {
	var sb strings.Builder
	sb.WriteString("[\n")
	for i, b := range blocks {
		fmt.Fprintf(&sb, `  {"id": %d, "type": %q, "heading": %q, "instruction": %q`, b.ID, b.Type, b.Heading, b.Instruction)
		if len(b.LSIKeywords) > 0 {
			fmt.Fprintf(&sb, `, "lsiKeywords": [%s]`, quoteJoin(b.LSIKeywords))
		}
		if len(b.Questions) > 0 {
			fmt.Fprintf(&sb, `, "questions": [%s]`, quoteJoin(b.Questions))
		}
		if b.Content != "" {
			fmt.Fprintf(&sb, `, "content": %q`, b.Content)
		}
		sb.WriteString("}")
		if i < len(blocks)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("]")
	return sb.String()
}

func quoteJoin(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}
	return strings.Join(quoted, ", ")
}
