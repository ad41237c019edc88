package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/stratforge/stratforge/internal/models"
)

// Config controls the compliance stage.
type Config struct {
	// SignalColumn is the designated output column generated strategies must
	// write their trading signal to.
	SignalColumn string
	// Indicators is the reference checklist of recognized technical
	// indicators. Coverage against it also feeds the confidence scorer.
	Indicators []string
}

// DefaultConfig returns the stock validation configuration.
func DefaultConfig() Config {
	return Config{
		SignalColumn: "signal",
		Indicators:   DefaultIndicators(),
	}
}

// DefaultIndicators returns the reference indicator checklist.
func DefaultIndicators() []string {
	return []string{
		"sma", "ema", "rsi", "macd", "bollinger",
		"atr", "stochastic", "adx", "obv", "vwap",
	}
}

// denyRule is one forbidden-operation pattern.
type denyRule struct {
	pattern *regexp.Regexp
	message string
}

// Denylisted operations: arbitrary file I/O, process spawning, network
// access, dynamic code evaluation.
var denyRules = []denyRule{
	{regexp.MustCompile(`\beval\s*\(`), "dynamic code evaluation via eval()"},
	{regexp.MustCompile(`\bexec\s*\(`), "dynamic code evaluation via exec()"},
	{regexp.MustCompile(`\b__import__\s*\(`), "dynamic import via __import__()"},
	{regexp.MustCompile(`\bcompile\s*\(`), "dynamic code compilation via compile()"},
	{regexp.MustCompile(`\bos\.system\s*\(`), "process spawning via os.system()"},
	{regexp.MustCompile(`\bos\.popen\s*\(`), "process spawning via os.popen()"},
	{regexp.MustCompile(`\bsubprocess\.`), "process spawning via subprocess"},
	{regexp.MustCompile(`\bopen\s*\(`), "arbitrary file I/O via open()"},
	{regexp.MustCompile(`\bos\.remove\b|\bos\.unlink\b|\bshutil\.`), "file system mutation"},
	{regexp.MustCompile(`\bsocket\.`), "raw network access via socket"},
	{regexp.MustCompile(`\brequests\.`), "network access via requests"},
	{regexp.MustCompile(`\burllib\b`), "network access via urllib"},
	{regexp.MustCompile(`\bhttpx\.`), "network access via httpx"},
}

// Validator runs the syntax, security, and compliance stages on one code
// artifact. It is stateless and safe for concurrent use.
type Validator struct {
	cfg Config
	log *logrus.Logger
}

// New creates a validator. A nil logger falls back to the logrus default.
func New(cfg Config, log *logrus.Logger) *Validator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.SignalColumn == "" {
		cfg.SignalColumn = "signal"
	}
	if len(cfg.Indicators) == 0 {
		cfg.Indicators = DefaultIndicators()
	}
	return &Validator{cfg: cfg, log: log}
}

// Validate runs the ordered stage pipeline over code. A fatal structural
// problem in the syntax stage short-circuits the remaining stages; the report
// then carries exactly that one ERROR finding. Overall pass/fail is
// ERROR-driven only, WARNINGs never fail validation.
func (v *Validator) Validate(code string, dialect models.Dialect) *models.ValidationReport {
	var findings []models.Finding

	if f := v.syntaxStage(code, dialect); f != nil {
		report := &models.ValidationReport{Findings: []models.Finding{*f}, Passed: false}
		v.log.WithFields(logrus.Fields{
			"stage":   f.Stage,
			"message": f.Message,
		}).Debug("Validation short-circuited on structural error")
		return report
	}

	findings = append(findings, v.securityStage(code)...)
	findings = append(findings, v.complianceStage(code)...)

	report := &models.ValidationReport{Findings: findings}
	report.Passed = report.ErrorCount() == 0
	return report
}

// syntaxStage checks that the code parses in the target dialect and defines
// the strategy entry points. It returns the first structural ERROR found, or
// nil when the stage passes.
func (v *Validator) syntaxStage(code string, dialect models.Dialect) *models.Finding {
	if strings.TrimSpace(code) == "" {
		return &models.Finding{
			Stage:    models.StageSyntax,
			Severity: models.SeverityError,
			Message:  "code is empty",
		}
	}

	if line, ok := checkBalanced(code, dialect); !ok {
		return &models.Finding{
			Stage:    models.StageSyntax,
			Severity: models.SeverityError,
			Message:  "unbalanced brackets",
			Line:     line,
		}
	}

	switch dialect {
	case models.DialectPineScript:
		if !regexp.MustCompile(`(?m)^\s*strategy\s*\(`).MatchString(code) {
			return &models.Finding{
				Stage:    models.StageSyntax,
				Severity: models.SeverityError,
				Message:  "missing strategy() declaration",
			}
		}
		if !strings.Contains(code, "strategy.entry") {
			return &models.Finding{
				Stage:    models.StageSyntax,
				Severity: models.SeverityError,
				Message:  "missing strategy.entry signal call",
			}
		}
	default: // python
		if !regexp.MustCompile(`(?m)^\s*def\s+initialize\s*\(`).MatchString(code) {
			return &models.Finding{
				Stage:    models.StageSyntax,
				Severity: models.SeverityError,
				Message:  "missing initialize() entry point",
			}
		}
		if !regexp.MustCompile(`(?m)^\s*def\s+generate_signals\s*\(`).MatchString(code) {
			return &models.Finding{
				Stage:    models.StageSyntax,
				Severity: models.SeverityError,
				Message:  "missing generate_signals() entry point",
			}
		}
	}

	return nil
}

// securityStage scans every line against the forbidden-operation denylist.
// Any match is an ERROR.
func (v *Validator) securityStage(code string) []models.Finding {
	var findings []models.Finding
	for i, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "//") {
			continue
		}
		for _, rule := range denyRules {
			if rule.pattern.MatchString(line) {
				findings = append(findings, models.Finding{
					Stage:    models.StageSecurity,
					Severity: models.SeverityError,
					Message:  fmt.Sprintf("forbidden operation: %s", rule.message),
					Line:     i + 1,
				})
			}
		}
	}
	return findings
}

// complianceStage checks style-level expectations: recognized indicator usage
// and the designated signal output column. Both are WARNING only.
func (v *Validator) complianceStage(code string) []models.Finding {
	var findings []models.Finding

	if len(IndicatorsUsed(code, v.cfg.Indicators)) == 0 {
		findings = append(findings, models.Finding{
			Stage:    models.StageCompliance,
			Severity: models.SeverityWarning,
			Message:  "no recognized technical indicator calls found",
		})
	}

	if !referencesSignalColumn(code, v.cfg.SignalColumn) {
		findings = append(findings, models.Finding{
			Stage:    models.StageCompliance,
			Severity: models.SeverityWarning,
			Message:  fmt.Sprintf("strategy does not write the %q output column", v.cfg.SignalColumn),
		})
	}

	return findings
}

// IndicatorsUsed returns the subset of the checklist referenced by code,
// matched case-insensitively on word boundaries.
func IndicatorsUsed(code string, checklist []string) []string {
	lower := strings.ToLower(code)
	var used []string
	for _, ind := range checklist {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(strings.ToLower(ind)) + `\b`)
		if re.MatchString(lower) {
			used = append(used, ind)
		}
	}
	return used
}

// IndicatorCoverage is the fraction of the checklist referenced by code.
func IndicatorCoverage(code string, checklist []string) float64 {
	if len(checklist) == 0 {
		return 0
	}
	return float64(len(IndicatorsUsed(code, checklist))) / float64(len(checklist))
}

func referencesSignalColumn(code, column string) bool {
	patterns := []string{
		`['"]` + regexp.QuoteMeta(column) + `['"]`,
		`\.` + regexp.QuoteMeta(column) + `\b`,
	}
	for _, p := range patterns {
		if regexp.MustCompile(p).MatchString(code) {
			return true
		}
	}
	return false
}

// checkBalanced verifies (), [] and {} nest correctly, skipping bracket
// characters inside string literals and comments. Python triple-quoted
// strings stay open across newlines; Pine Script treats // as a comment
// starter, Python uses #. Returns the offending line on failure.
func checkBalanced(code string, dialect models.Dialect) (int, bool) {
	var stack []rune
	pairs := map[rune]rune{')': '(', ']': '[', '}': '{'}

	runes := []rune(code)
	line := 1
	inString := false
	var quote rune
	var docQuote rune // non-zero while inside a triple-quoted string

	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if c == '\n' {
			line++
			inString = false // single-line strings and comments end here
			continue
		}
		if docQuote != 0 {
			if c == docQuote && i+2 < len(runes) && runes[i+1] == docQuote && runes[i+2] == docQuote {
				docQuote = 0
				i += 2
			}
			continue
		}
		if inString {
			if c == quote {
				inString = false
			}
			continue
		}
		switch c {
		case '\'', '"':
			if dialect != models.DialectPineScript && i+2 < len(runes) && runes[i+1] == c && runes[i+2] == c {
				docQuote = c
				i += 2
			} else {
				inString = true
				quote = c
			}
		case '#':
			if dialect != models.DialectPineScript {
				inString = true // treat rest of line as opaque
				quote = '\n'
			}
		case '/':
			if dialect == models.DialectPineScript && i+1 < len(runes) && runes[i+1] == '/' {
				inString = true // treat rest of line as opaque
				quote = '\n'
			}
		case '(', '[', '{':
			stack = append(stack, c)
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != pairs[c] {
				return line, false
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) != 0 {
		return line, false
	}
	return 0, true
}
