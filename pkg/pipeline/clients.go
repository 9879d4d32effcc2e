package pipeline

import (
	"context"
	"fmt"

	"github.com/Makar0n1/art-automation/pkg/providers"
	"github.com/Makar0n1/art-automation/pkg/types"
	"github.com/Makar0n1/art-automation/pkg/vault"
)

// SearchProvider is the slice of the search client the runner consumes.
type SearchProvider interface {
	FetchSERP(ctx context.Context, query, region, language string, onProgress func(types.SerpEntry, int)) ([]types.SerpEntry, error)
}

// LLMProvider is the slice of the chat client the runner consumes.
type LLMProvider interface {
	AnalyzeStructure(ctx context.Context, in providers.StructureInput) (*types.StructureAnalysis, error)
	EnrichBlocks(ctx context.Context, in providers.StructureInput, blocks []types.Block) ([]types.Block, error)
	WriteBlock(ctx context.Context, in providers.WriteInput) (string, error)
	InsertLinks(ctx context.Context, content string, links []types.InternalLink) (string, error)
	ReviewArticle(ctx context.Context, blocks []types.Block) ([]providers.FixTask, error)
	FixBlock(ctx context.Context, block types.Block, issues []string, suggestion string) (string, error)
	GenerateSEO(ctx context.Context, mainKeyword, article string) (title, description string)
	GetTokenUsage(reset bool) providers.TokenUsage
}

// VectorProvider is the slice of the vector client the runner consumes.
type VectorProvider interface {
	FindAnswer(ctx context.Context, question string) (*types.AnsweredQuestion, error)
}

// ClientSet holds the provider clients built for one job. A nil field
// means the owner has not configured that credential; each stage checks
// the clients it needs.
type ClientSet struct {
	Search SearchProvider
	LLM    LLMProvider
	Vector VectorProvider
}

// ClientFactory builds provider clients from one principal's decrypted
// credentials. Clients are never shared across jobs.
type ClientFactory func(user *types.User) (*ClientSet, error)

// NewClientFactory returns the production factory: credentials are
// decrypted through the vault and each present credential yields a live
// HTTP client.
func NewClientFactory(v *vault.Vault, model, vectorStoreURL string) ClientFactory {
	return func(user *types.User) (*ClientSet, error) {
		set := &ClientSet{}

		if key, ok := decrypted(v, user, types.ProviderFirecrawl); ok {
			set.Search = providers.NewSearchClient(key, "")
		}
		openRouterKey, hasLLM := decrypted(v, user, types.ProviderOpenRouter)
		if hasLLM {
			set.LLM = providers.NewLLMClient(openRouterKey, "", model)
		}
		if key, ok := decrypted(v, user, types.ProviderSupabase); ok && hasLLM {
			set.Vector = providers.NewVectorClient(vectorStoreURL, key, openRouterKey, "")
		}
		return set, nil
	}
}

func decrypted(v *vault.Vault, user *types.User, p types.Provider) (string, bool) {
	cred, ok := user.Credentials[p]
	if !ok || cred == nil || cred.Value == "" {
		return "", false
	}
	plain, err := v.Decrypt(cred.Value)
	if err != nil || plain == "" {
		return "", false
	}
	return plain, true
}

func missingCredential(p types.Provider) error {
	return fmt.Errorf("%s credential is not configured", p)
}
