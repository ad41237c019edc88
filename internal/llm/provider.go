package llm

import (
	"context"

	"github.com/stratforge/stratforge/internal/models"
)

// Provider defines the capability contract every LLM vendor adapter
// implements. Adapters are stateless with respect to requests; any client or
// connection handle they hold is owned by the adapter instance and must be
// safe for concurrent use.
type Provider interface {
	// Generate produces strategy source code for the given prompt. It must
	// respect ctx cancellation and return a typed *ProviderError on failure.
	Generate(ctx context.Context, prompt string, opts *models.GenerateOptions) (*models.Generation, error)
	// Name returns the stable provider identifier used in the registry.
	Name() string
	// Capabilities describes what this adapter supports.
	Capabilities() *models.ProviderCapabilities
	// HealthCheck verifies connectivity with a minimal request.
	HealthCheck(ctx context.Context) error
}
