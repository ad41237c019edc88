package models

import "time"

// Market identifies the asset class a strategy targets.
type Market string

const (
	MarketCrypto Market = "crypto"
	MarketEquity Market = "equity"
	MarketForex  Market = "forex"
)

// Timeframe is the candle interval a strategy trades on.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// RiskLevel expresses the caller's risk appetite for the generated strategy.
type RiskLevel string

const (
	RiskConservative RiskLevel = "conservative"
	RiskModerate     RiskLevel = "moderate"
	RiskAggressive   RiskLevel = "aggressive"
)

// Dialect is the source dialect generated strategy code is written in.
type Dialect string

const (
	DialectPython     Dialect = "python"
	DialectPineScript Dialect = "pinescript"
)

// StrategyRequest describes one strategy-generation request. It is immutable
// once submitted to the coordinator.
type StrategyRequest struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Market      Market    `json:"market"`
	Timeframe   Timeframe `json:"timeframe"`
	RiskLevel   RiskLevel `json:"risk_level"`
	Providers   []string  `json:"providers"`
	Dialect     Dialect   `json:"dialect"`
	TemplateID  string    `json:"template_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// GenerateOptions tunes a single provider generation call.
type GenerateOptions struct {
	Model         string   `json:"model,omitempty"`
	MaxTokens     int      `json:"max_tokens,omitempty"`
	Temperature   float64  `json:"temperature,omitempty"`
	TopP          float64  `json:"top_p,omitempty"`
	StopSequences []string `json:"stop_sequences,omitempty"`
}

// Generation is the raw output of one provider call.
type Generation struct {
	Text         string        `json:"text"`
	Model        string        `json:"model"`
	TokensUsed   int           `json:"tokens_used"`
	FinishReason string        `json:"finish_reason"`
	Latency      time.Duration `json:"latency"`
}

// ProviderCapabilities describes what a provider adapter supports.
type ProviderCapabilities struct {
	SupportedModels   []string          `json:"supported_models"`
	SupportsBatching  bool              `json:"supports_batching"`
	SupportsStreaming bool              `json:"supports_streaming"`
	MaxTokens         int               `json:"max_tokens"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// ProviderResult is one provider's contribution to a coordinator invocation.
// It is created once by the coordinator and never mutated afterwards.
type ProviderResult struct {
	ProviderID   string        `json:"provider_id"`
	Code         string        `json:"code"`
	Model        string        `json:"model"`
	TokensUsed   int           `json:"tokens_used"`
	Latency      time.Duration `json:"latency"`
	Success      bool          `json:"success"`
	FinishReason string        `json:"finish_reason,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// FindingStage tags which validation stage produced a finding.
type FindingStage string

const (
	StageSyntax     FindingStage = "SYNTAX"
	StageSecurity   FindingStage = "SECURITY"
	StageCompliance FindingStage = "COMPLIANCE"
)

// FindingSeverity is the severity of a validation finding.
type FindingSeverity string

const (
	SeverityError   FindingSeverity = "ERROR"
	SeverityWarning FindingSeverity = "WARNING"
)

// Finding is one reported issue in generated strategy code.
type Finding struct {
	Stage    FindingStage    `json:"stage"`
	Severity FindingSeverity `json:"severity"`
	Message  string          `json:"message"`
	Line     int             `json:"line,omitempty"`
}

// ValidationReport is the immutable outcome of validating one code artifact.
// Passed is false iff at least one ERROR finding exists.
type ValidationReport struct {
	Findings []Finding `json:"findings"`
	Passed   bool      `json:"passed"`
}

// ErrorCount returns the number of ERROR findings in the report.
func (r *ValidationReport) ErrorCount() int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			n++
		}
	}
	return n
}

// WarningCount returns the number of WARNING findings in the report.
func (r *ValidationReport) WarningCount() int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == SeverityWarning {
			n++
		}
	}
	return n
}

// HasStage reports whether any finding came from the given stage.
func (r *ValidationReport) HasStage(stage FindingStage) bool {
	for _, f := range r.Findings {
		if f.Stage == stage {
			return true
		}
	}
	return false
}

// ScoreBreakdown holds the per-component confidence scores for one result.
// Every component is in [0,1]; Total is the weighted sum.
type ScoreBreakdown struct {
	Completeness     float64 `json:"completeness"`
	IndicatorUsage   float64 `json:"indicator_usage"`
	SyntaxCompliance float64 `json:"syntax_compliance"`
	LatencyScore     float64 `json:"latency_score"`
	Total            float64 `json:"total"`
}

// RankedResult bundles one provider result with its validation report and
// confidence score. Coordinator output is a slice of these, sorted by Total
// descending.
type RankedResult struct {
	Result ProviderResult   `json:"result"`
	Report ValidationReport `json:"report"`
	Score  ScoreBreakdown   `json:"score"`
}

// ProviderFailure records a provider that failed during a coordinator
// invocation. Failures are metadata, not fatal, as long as one provider
// succeeded.
type ProviderFailure struct {
	ProviderID string `json:"provider_id"`
	Cause      string `json:"cause"`
}
