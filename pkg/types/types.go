package types

import (
	"time"
)

// User is an authenticated principal. One user owns projects, generations
// and the three encrypted provider credentials.
type User struct {
	ID           string                   `json:"id"`
	Email        string                   `json:"email"`
	PasswordHash string                   `json:"-"`
	PinHash      string                   `json:"-"`
	Credentials  map[Provider]*Credential `json:"-"`
	CreatedAt    time.Time                `json:"createdAt"`
	UpdatedAt    time.Time                `json:"updatedAt"`
}

// HasPin reports whether a second-factor PIN has been configured.
func (u *User) HasPin() bool {
	return u.PinHash != ""
}

// Credential holds one provider API key as an encrypted envelope plus its
// last validation result.
type Credential struct {
	Value       string     `json:"value"` // encrypted, nonce:tag:ciphertext
	Valid       bool       `json:"valid"`
	LastChecked *time.Time `json:"lastChecked,omitempty"`
}

// Provider identifies the external service a credential belongs to.
type Provider string

const (
	ProviderOpenRouter Provider = "openrouter" // LLM chat
	ProviderSupabase   Provider = "supabase"   // vector similarity
	ProviderFirecrawl  Provider = "firecrawl"  // search & scrape
)

// Providers lists all credential slots in a stable order.
func Providers() []Provider {
	return []Provider{ProviderOpenRouter, ProviderSupabase, ProviderFirecrawl}
}

// Project groups generations under one owner.
type Project struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// GenerationStatus is the job state machine. Statuses are persisted as
// strings; renaming a value breaks resume of in-flight jobs.
type GenerationStatus string

const (
	StatusQueued GenerationStatus = "queued"

	StatusProcessing         GenerationStatus = "processing"
	StatusParsingSerp        GenerationStatus = "parsing_serp"
	StatusAnalyzingStructure GenerationStatus = "analyzing_structure"
	StatusEnrichingBlocks    GenerationStatus = "enriching_blocks"
	StatusAnsweringQuestions GenerationStatus = "answering_questions"
	StatusWritingArticle     GenerationStatus = "writing_article"
	StatusInsertingLinks     GenerationStatus = "inserting_links"
	StatusReviewingArticle   GenerationStatus = "reviewing_article"

	StatusPausedAfterSerp      GenerationStatus = "paused_after_serp"
	StatusPausedAfterStructure GenerationStatus = "paused_after_structure"
	StatusPausedAfterBlocks    GenerationStatus = "paused_after_blocks"
	StatusPausedAfterAnswers   GenerationStatus = "paused_after_answers"
	StatusPausedAfterWriting   GenerationStatus = "paused_after_writing"
	StatusPausedAfterReview    GenerationStatus = "paused_after_review"

	StatusCompleted GenerationStatus = "completed"
	StatusFailed    GenerationStatus = "failed"
)

// IsPaused reports whether the status is a pause point a continue request
// may resume from.
func (s GenerationStatus) IsPaused() bool {
	switch s {
	case StatusPausedAfterSerp, StatusPausedAfterStructure, StatusPausedAfterBlocks,
		StatusPausedAfterAnswers, StatusPausedAfterWriting, StatusPausedAfterReview:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s GenerationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ArticleType tags the editorial shape of the requested article.
type ArticleType string

const (
	ArticleInformational ArticleType = "informational"
	ArticleCommercial    ArticleType = "commercial"
	ArticleReview        ArticleType = "review"
	ArticleComparison    ArticleType = "comparison"
	ArticleHowTo         ArticleType = "howto"
	ArticleListicle      ArticleType = "listicle"
	ArticleNews          ArticleType = "news"
	ArticleGuide         ArticleType = "guide"
)

// ArticleTypes lists the closed set of accepted article type tags.
func ArticleTypes() []ArticleType {
	return []ArticleType{
		ArticleInformational, ArticleCommercial, ArticleReview, ArticleComparison,
		ArticleHowTo, ArticleListicle, ArticleNews, ArticleGuide,
	}
}

// LogLevel classifies one generation log entry.
type LogLevel string

const (
	LogInfo     LogLevel = "info"
	LogWarn     LogLevel = "warn"
	LogError    LogLevel = "error"
	LogDebug    LogLevel = "debug"
	LogThinking LogLevel = "thinking"
)

// LogEntry is one append-only line in a generation's event log.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
}

// SerpEntry is one scraped competitor page.
type SerpEntry struct {
	URL       string   `json:"url"`
	Title     string   `json:"title"`
	Position  int      `json:"position"`
	Headings  []string `json:"headings,omitempty"`
	Text      string   `json:"text,omitempty"`
	WordCount int      `json:"wordCount"`
	Error     string   `json:"error,omitempty"`
}

// StructureAnalysis is the LLM's competitor analysis plus the recommended
// block skeleton the rest of the pipeline works from.
type StructureAnalysis struct {
	AverageWordCount     int      `json:"averageWordCount"`
	CommonPatterns       []string `json:"commonPatterns,omitempty"`
	Strengths            []string `json:"strengths,omitempty"`
	Weaknesses           []string `json:"weaknesses,omitempty"`
	RecommendedStructure []Block  `json:"recommendedStructure"`
}

// BlockType is the structural role of one article block.
type BlockType string

const (
	BlockH1         BlockType = "h1"
	BlockIntro      BlockType = "intro"
	BlockH2         BlockType = "h2"
	BlockH3         BlockType = "h3"
	BlockConclusion BlockType = "conclusion"
	BlockFAQ        BlockType = "faq"
)

// CarriesQuestions reports whether research questions may be attached to
// blocks of this type. Intro, h1, conclusion and faq blocks never do.
func (t BlockType) CarriesQuestions() bool {
	switch t {
	case BlockH1, BlockIntro, BlockFAQ, BlockConclusion:
		return false
	}
	return true
}

// Block is one structural unit of the article.
type Block struct {
	ID                int                `json:"id"`
	Type              BlockType          `json:"type"`
	Heading           string             `json:"heading"`
	Instruction       string             `json:"instruction,omitempty"`
	LSIKeywords       []string           `json:"lsiKeywords,omitempty"`
	Questions         []string           `json:"questions,omitempty"`
	AnsweredQuestions []AnsweredQuestion `json:"answeredQuestions,omitempty"`
	Content           string             `json:"content,omitempty"`
}

// Markdown renders the block as it appears in the assembled article.
func (b *Block) Markdown() string {
	if b.Type == BlockIntro || b.Heading == "" {
		return b.Content
	}
	var prefix string
	switch b.Type {
	case BlockH1:
		prefix = "# "
	case BlockH3:
		prefix = "### "
	default:
		prefix = "## "
	}
	if b.Content == "" {
		return prefix + b.Heading
	}
	return prefix + b.Heading + "\n\n" + b.Content
}

// AnsweredQuestion is one research question resolved against the vector
// knowledge base.
type AnsweredQuestion struct {
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Source     string  `json:"source,omitempty"`
	Similarity float64 `json:"similarity"`
}

// LinkPosition constrains where an internal link may land in the article.
type LinkPosition string

const (
	LinkPositionIntro      LinkPosition = "intro"
	LinkPositionBody       LinkPosition = "body"
	LinkPositionConclusion LinkPosition = "conclusion"
	LinkPositionAny        LinkPosition = "any"
)

// LinkDisplay selects how an internal link is rendered.
type LinkDisplay string

const (
	LinkDisplayInline    LinkDisplay = "inline"
	LinkDisplayListStart LinkDisplay = "list-start"
	LinkDisplayListEnd   LinkDisplay = "list-end"
	LinkDisplaySidebar   LinkDisplay = "sidebar"
)

// InternalLink is one link descriptor the final article must carry verbatim.
type InternalLink struct {
	URL         string       `json:"url"`
	Anchor      string       `json:"anchor,omitempty"`
	Anchorless  bool         `json:"anchorless,omitempty"`
	DisplayType LinkDisplay  `json:"displayType,omitempty"`
	Position    LinkPosition `json:"position,omitempty"`
}

// AnchorText resolves the rendered anchor; anchorless links use the URL.
func (l *InternalLink) AnchorText() string {
	if l.Anchorless || l.Anchor == "" {
		return l.URL
	}
	return l.Anchor
}

// Generation is one article-generation job: immutable configuration,
// runtime state and the artifacts accumulated across the stages.
type Generation struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectId"`
	UserID    string `json:"userId"`

	// Configuration, immutable after creation.
	MainKeyword   string         `json:"mainKeyword"`
	ArticleType   ArticleType    `json:"articleType"`
	Keywords      []string       `json:"keywords,omitempty"`
	Language      string         `json:"language"`
	Region        string         `json:"region"`
	LSIKeywords   []string       `json:"lsiKeywords,omitempty"`
	StyleComment  string         `json:"styleComment,omitempty"`
	Continuous    bool           `json:"continuous"`
	InternalLinks []InternalLink `json:"internalLinks,omitempty"`

	// Runtime state.
	Status      GenerationStatus `json:"status"`
	Progress    int              `json:"progress"`
	CurrentStep string           `json:"currentStep,omitempty"`
	Logs        []LogEntry       `json:"logs,omitempty"`

	// Artifacts.
	SerpResults      []SerpEntry        `json:"serpResults,omitempty"`
	AverageWordCount int                `json:"averageWordCount,omitempty"`
	Analysis         *StructureAnalysis `json:"structureAnalysis,omitempty"`
	ArticleBlocks    []Block            `json:"articleBlocks,omitempty"`
	Article          string             `json:"article,omitempty"`
	SEOTitle         string             `json:"seoTitle,omitempty"`
	SEODescription   string             `json:"seoDescription,omitempty"`
	Error            string             `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// PinAttempt tracks failed PIN verifications for one (client IP, user) pair.
type PinAttempt struct {
	IP          string    `json:"ip"`
	UserID      string    `json:"userId"`
	Attempts    int       `json:"attempts"`
	Blocked     bool      `json:"blocked"`
	LastAttempt time.Time `json:"lastAttempt"`
}

// QueueMessage is the payload placed on the generation queue.
type QueueMessage struct {
	GenerationID string           `json:"generationId"`
	UserID       string           `json:"userId"`
	ContinueFrom GenerationStatus `json:"continueFrom,omitempty"`
	Attempts     int              `json:"attempts"`
	EnqueuedAt   time.Time        `json:"enqueuedAt"`
}

// Event is one bus message relayed to subscribed sessions.
type Event struct {
	Room  string `json:"room"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// GenerationRoom names the pub/sub room scoped to one generation.
func GenerationRoom(id string) string {
	return "generation:" + id
}
