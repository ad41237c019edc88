package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stratforge/stratforge/internal/models"
	"github.com/stratforge/stratforge/internal/templates"
)

// buildPrompt renders the generation prompt for one request. A configured
// template augments the prompt; a missing template (or no template source)
// only omits the augmentation, it never fails generation.
func (c *Coordinator) buildPrompt(ctx context.Context, req *models.StrategyRequest) string {
	var b strings.Builder

	b.WriteString("Generate an algorithmic trading strategy.\n\n")
	fmt.Fprintf(&b, "Description: %s\n", req.Description)
	if req.Market != "" {
		fmt.Fprintf(&b, "Market: %s\n", req.Market)
	}
	if req.Timeframe != "" {
		fmt.Fprintf(&b, "Timeframe: %s\n", req.Timeframe)
	}
	if req.RiskLevel != "" {
		fmt.Fprintf(&b, "Risk level: %s\n", req.RiskLevel)
	}

	b.WriteString("\n")
	switch req.Dialect {
	case models.DialectPineScript:
		b.WriteString("Write the strategy in Pine Script. Declare it with strategy() " +
			"and place orders through strategy.entry.\n")
	default:
		b.WriteString("Write the strategy in Python. Define initialize(context) for setup " +
			"and generate_signals(df) that writes buy/sell/hold values into the 'signal' column.\n")
	}
	b.WriteString("Use well-known technical indicators where appropriate. " +
		"Do not perform file, network, process, or dynamic-code operations.\n")

	if req.TemplateID != "" && c.templates != nil {
		text, err := c.templates.GetTemplate(ctx, req.TemplateID)
		switch {
		case err == nil:
			b.WriteString("\nFollow this template:\n")
			b.WriteString(text)
			b.WriteString("\n")
		case errors.Is(err, templates.ErrNotFound):
			c.log.WithField("template_id", req.TemplateID).Debug("Template not found, skipping augmentation")
		default:
			c.log.WithError(err).WithField("template_id", req.TemplateID).Warn("Template lookup failed, skipping augmentation")
		}
	}

	return b.String()
}
