package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/Makar0n1/art-automation/pkg/providers"
	"github.com/Makar0n1/art-automation/pkg/types"
)

// Stage 1: SERP ingestion. Searches for the main keyword, scrapes each
// competitor page and records normalized entries plus the average word
// count the writing stage targets.
func (r *Runner) runSERP(ctx context.Context, j *job) error {
	if j.set.Search == nil {
		return missingCredential(types.ProviderFirecrawl)
	}
	if err := r.setStatus(ctx, j, types.StatusParsingSerp, 10, "Parsing search results"); err != nil {
		return err
	}
	r.appendLog(ctx, j, types.LogInfo, fmt.Sprintf("Starting SERP parsing for %q", j.gen.MainKeyword), nil)

	total := 10
	entries, err := j.set.Search.FetchSERP(ctx, j.gen.MainKeyword, j.gen.Region, j.gen.Language, func(entry types.SerpEntry, i int) {
		if err := r.persist(j, func(g *types.Generation) {
			g.SerpResults = append(g.SerpResults, entry)
		}); err != nil {
			j.logger.Error().Err(err).Msg("failed to persist serp entry")
		}
		progress := 10 + (i+1)*40/total
		if progress > 50 {
			progress = 50
		}
		_ = r.setProgress(ctx, j, progress)
		if entry.Error != "" {
			r.appendLog(ctx, j, types.LogWarn, fmt.Sprintf("Failed to parse %s: %s", entry.URL, entry.Error), nil)
		} else {
			r.appendLog(ctx, j, types.LogInfo, fmt.Sprintf("Parsed %s (%d words)", entry.URL, entry.WordCount), nil)
		}
	})
	if err != nil {
		return fmt.Errorf("SERP parsing failed: %w", err)
	}

	sum, counted := 0, 0
	for _, entry := range entries {
		if entry.Error == "" && entry.WordCount > 0 {
			sum += entry.WordCount
			counted++
		}
	}
	avg := defaultWordCount
	if counted > 0 {
		avg = sum / counted
	}
	if err := r.persist(j, func(g *types.Generation) {
		g.AverageWordCount = avg
	}); err != nil {
		return err
	}

	if err := r.setProgress(ctx, j, 50); err != nil {
		return err
	}
	r.appendLog(ctx, j, types.LogInfo,
		fmt.Sprintf("SERP parsing finished: %d pages, average %d words", len(entries), avg), nil)
	return nil
}

// Stage 2: structure analysis. The recommended block list becomes the
// job's working block list.
func (r *Runner) runStructure(ctx context.Context, j *job) error {
	if j.set.LLM == nil {
		return missingCredential(types.ProviderOpenRouter)
	}
	if err := r.setStatus(ctx, j, types.StatusAnalyzingStructure, 55, "Analyzing competitor structure"); err != nil {
		return err
	}
	r.appendLog(ctx, j, types.LogInfo, "Analyzing competitor structures", nil)

	analysis, err := j.set.LLM.AnalyzeStructure(ctx, r.structureInput(j))
	if err != nil {
		return fmt.Errorf("Structure analysis failed: %w", err)
	}
	if analysis.AverageWordCount == 0 {
		analysis.AverageWordCount = j.gen.AverageWordCount
	}

	if err := r.persist(j, func(g *types.Generation) {
		g.Analysis = analysis
		g.ArticleBlocks = analysis.RecommendedStructure
	}); err != nil {
		return err
	}
	if err := r.setProgress(ctx, j, 65); err != nil {
		return err
	}
	r.emitBlocks(ctx, j)
	r.appendLog(ctx, j, types.LogInfo,
		fmt.Sprintf("Structure ready: %d blocks planned", len(analysis.RecommendedStructure)), nil)
	return nil
}

// Stage 3: block enrichment. Instructions become detailed briefs and
// content blocks gain research questions.
func (r *Runner) runEnrichment(ctx context.Context, j *job) error {
	if j.set.LLM == nil {
		return missingCredential(types.ProviderOpenRouter)
	}
	if err := r.setStatus(ctx, j, types.StatusEnrichingBlocks, 75, "Enriching block instructions"); err != nil {
		return err
	}
	r.appendLog(ctx, j, types.LogInfo, "Enriching block instructions", nil)

	enriched, err := j.set.LLM.EnrichBlocks(ctx, r.structureInput(j), j.gen.ArticleBlocks)
	if err != nil {
		return fmt.Errorf("Block enrichment failed: %w", err)
	}

	if err := r.persist(j, func(g *types.Generation) {
		g.ArticleBlocks = enriched
	}); err != nil {
		return err
	}
	if err := r.setProgress(ctx, j, 85); err != nil {
		return err
	}
	r.emitBlocks(ctx, j)
	r.appendLog(ctx, j, types.LogInfo, "Block enrichment finished", nil)
	return nil
}

// Stage 4: question answering against the owner's knowledge base. Each
// block keeps only the questions that found an answer.
func (r *Runner) runAnswers(ctx context.Context, j *job) error {
	if j.set.Vector == nil {
		return missingCredential(types.ProviderSupabase)
	}
	if err := r.setStatus(ctx, j, types.StatusAnsweringQuestions, 90, "Answering research questions"); err != nil {
		return err
	}
	r.appendLog(ctx, j, types.LogInfo, "Answering research questions from knowledge base", nil)

	blocks := j.gen.ArticleBlocks
	answered := 0
	for bi := range blocks {
		if len(blocks[bi].Questions) == 0 {
			continue
		}

		var kept []string
		var tuples []types.AnsweredQuestion
		for qi, question := range blocks[bi].Questions {
			if qi > 0 {
				r.sleep(questionDelay)
			}
			answer, err := j.set.Vector.FindAnswer(ctx, question)
			if err != nil {
				return fmt.Errorf("Question answering failed: %w", err)
			}
			if answer == nil {
				continue
			}
			kept = append(kept, question)
			tuples = append(tuples, *answer)
			answered++
		}

		blockID := blocks[bi].ID
		if err := r.persist(j, func(g *types.Generation) {
			for gi := range g.ArticleBlocks {
				if g.ArticleBlocks[gi].ID == blockID {
					g.ArticleBlocks[gi].Questions = kept
					g.ArticleBlocks[gi].AnsweredQuestions = tuples
				}
			}
		}); err != nil {
			return err
		}
		_ = r.setProgress(ctx, j, 90+(bi+1)*5/len(blocks))
		r.emitBlocks(ctx, j)
	}

	if err := r.setProgress(ctx, j, 95); err != nil {
		return err
	}
	r.appendLog(ctx, j, types.LogInfo, fmt.Sprintf("Answered %d research questions", answered), nil)
	return nil
}

// Stage 5: article writing, one block at a time with the assembled prior
// content as style context.
func (r *Runner) runWriting(ctx context.Context, j *job) error {
	if j.set.LLM == nil {
		return missingCredential(types.ProviderOpenRouter)
	}
	if err := r.setStatus(ctx, j, types.StatusWritingArticle, 97, "Writing article"); err != nil {
		return err
	}
	r.appendLog(ctx, j, types.LogInfo, "Writing article blocks", nil)

	var assembled strings.Builder
	for bi := range j.gen.ArticleBlocks {
		if bi > 0 {
			r.sleep(blockDelay)
		}
		block := j.gen.ArticleBlocks[bi]

		content, err := j.set.LLM.WriteBlock(ctx, providers.WriteInput{
			MainKeyword:  j.gen.MainKeyword,
			Language:     j.gen.Language,
			StyleComment: j.gen.StyleComment,
			Block:        block,
			PriorContent: assembled.String(),
		})
		if err != nil {
			return fmt.Errorf("Article writing failed: %w", err)
		}

		blockID := block.ID
		if err := r.persist(j, func(g *types.Generation) {
			for gi := range g.ArticleBlocks {
				if g.ArticleBlocks[gi].ID == blockID {
					g.ArticleBlocks[gi].Content = content
				}
			}
		}); err != nil {
			return err
		}

		block.Content = content
		if assembled.Len() > 0 {
			assembled.WriteString("\n\n")
		}
		assembled.WriteString(block.Markdown())

		r.emitBlocks(ctx, j)
		r.appendLog(ctx, j, types.LogInfo,
			fmt.Sprintf("Wrote block %d/%d", bi+1, len(j.gen.ArticleBlocks)), nil)
	}

	if err := r.persist(j, func(g *types.Generation) {
		g.Article = assembled.String()
	}); err != nil {
		return err
	}
	return r.setProgress(ctx, j, 99)
}

// Stage 6: link insertion. Optional and non-fatal; a failure leaves the
// article in whatever state was reached and only logs a warning.
func (r *Runner) runLinks(ctx context.Context, j *job) error {
	if len(j.gen.InternalLinks) == 0 {
		return nil
	}
	if j.set.LLM == nil {
		r.appendLog(ctx, j, types.LogWarn, "Link insertion skipped: "+missingCredential(types.ProviderOpenRouter).Error(), nil)
		return nil
	}
	if err := r.setStatus(ctx, j, types.StatusInsertingLinks, 99, "Inserting internal links"); err != nil {
		return err
	}
	r.appendLog(ctx, j, types.LogInfo,
		fmt.Sprintf("Inserting %d internal links", len(j.gen.InternalLinks)), nil)

	assignments := providers.SelectLinkBlocks(j.gen.InternalLinks, j.gen.ArticleBlocks)
	byBlock := make(map[int][]types.InternalLink)
	for _, a := range assignments {
		byBlock[a.BlockID] = append(byBlock[a.BlockID], a.Link)
	}

	for blockID, links := range byBlock {
		var target *types.Block
		for gi := range j.gen.ArticleBlocks {
			if j.gen.ArticleBlocks[gi].ID == blockID {
				target = &j.gen.ArticleBlocks[gi]
				break
			}
		}
		if target == nil {
			continue
		}

		rewritten, err := j.set.LLM.InsertLinks(ctx, target.Content, links)
		if err != nil {
			r.appendLog(ctx, j, types.LogWarn, "Link insertion failed: "+err.Error(), nil)
			continue
		}
		if err := r.persist(j, func(g *types.Generation) {
			for gi := range g.ArticleBlocks {
				if g.ArticleBlocks[gi].ID == blockID {
					g.ArticleBlocks[gi].Content = rewritten
				}
			}
		}); err != nil {
			return err
		}
	}

	if err := r.persist(j, func(g *types.Generation) {
		g.Article = assembleArticle(g.ArticleBlocks)
	}); err != nil {
		return err
	}
	r.emitBlocks(ctx, j)
	r.appendLog(ctx, j, types.LogInfo, "Internal links inserted", nil)
	return nil
}

// Stage 7: quality review, per-block fixes and SEO metadata.
func (r *Runner) runReview(ctx context.Context, j *job) error {
	if j.set.LLM == nil {
		return missingCredential(types.ProviderOpenRouter)
	}
	if err := r.setStatus(ctx, j, types.StatusReviewingArticle, 99, "Reviewing article"); err != nil {
		return err
	}
	r.appendLog(ctx, j, types.LogInfo, "Reviewing article quality", nil)

	tasks, err := j.set.LLM.ReviewArticle(ctx, j.gen.ArticleBlocks)
	if err != nil {
		return fmt.Errorf("Article review failed: %w", err)
	}

	for _, task := range tasks {
		var target *types.Block
		for gi := range j.gen.ArticleBlocks {
			if j.gen.ArticleBlocks[gi].ID == task.BlockID {
				target = &j.gen.ArticleBlocks[gi]
				break
			}
		}
		if target == nil || target.Content == "" {
			continue
		}

		fixed, err := j.set.LLM.FixBlock(ctx, *target, task.Issues, task.Suggestion)
		if err != nil {
			return fmt.Errorf("Article review failed: %w", err)
		}
		blockID := task.BlockID
		if err := r.persist(j, func(g *types.Generation) {
			for gi := range g.ArticleBlocks {
				if g.ArticleBlocks[gi].ID == blockID {
					g.ArticleBlocks[gi].Content = fixed
				}
			}
		}); err != nil {
			return err
		}
	}

	article := assembleArticle(j.gen.ArticleBlocks)
	title, description := j.set.LLM.GenerateSEO(ctx, j.gen.MainKeyword, article)

	if err := r.persist(j, func(g *types.Generation) {
		g.Article = article
		g.SEOTitle = title
		g.SEODescription = description
	}); err != nil {
		return err
	}
	r.emitBlocks(ctx, j)
	r.appendLog(ctx, j, types.LogInfo, "Review finished, SEO metadata generated", nil)
	return nil
}

func (r *Runner) structureInput(j *job) providers.StructureInput {
	return providers.StructureInput{
		MainKeyword:  j.gen.MainKeyword,
		Language:     j.gen.Language,
		ArticleType:  j.gen.ArticleType,
		Keywords:     j.gen.Keywords,
		LSIKeywords:  j.gen.LSIKeywords,
		StyleComment: j.gen.StyleComment,
		SerpEntries:  j.gen.SerpResults,
	}
}

// assembleArticle renders the block list into the final markdown document.
func assembleArticle(blocks []types.Block) string {
	parts := make([]string, 0, len(blocks))
	for i := range blocks {
		if md := blocks[i].Markdown(); md != "" {
			parts = append(parts, md)
		}
	}
	return strings.Join(parts, "\n\n")
}
