package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/TanWaiKen/invoice-ai-excel/internal/matcher"
	"github.com/TanWaiKen/invoice-ai-excel/internal/models"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/errors"
	"github.com/TanWaiKen/invoice-ai-excel/pkg/logger"
)

// Arbiter asks the model to pick among the top candidates. It implements
// matcher.Arbiter.
type Arbiter struct {
	model Model
	log   logger.Logger
}

// NewArbiter creates an LLM arbiter
func NewArbiter(model Model, log logger.Logger) *Arbiter {
	return &Arbiter{model: model, log: logger.OrGlobal(log, "llm-arbiter")}
}

// Choose implements matcher.Arbiter
func (a *Arbiter) Choose(ctx context.Context, query string, price decimal.NullDecimal, candidates []models.MatchCandidate) (string, error) {
	if len(candidates) == 0 {
		return matcher.NoneChoice, nil
	}

	answer, err := a.model.Generate(ctx, Request{Prompt: arbiterPrompt(query, price, candidates)})
	if err != nil {
		return "", err
	}

	a.log.WithFields(logger.Fields{
		"customer_name": query,
		"answer":        answer,
	}).Debug("Arbiter answered")

	return ParseChoice(answer, candidates)
}

// ParseChoice maps a free-text answer to a candidate name. "NONE" means no
// candidate; otherwise the longest candidate name contained in the answer
// wins. Anything else is an InvalidResponse error.
func ParseChoice(answer string, candidates []models.MatchCandidate) (string, error) {
	cleaned := strings.Trim(strings.TrimSpace(answer), "\"'`.*")
	if strings.EqualFold(cleaned, matcher.NoneChoice) {
		return matcher.NoneChoice, nil
	}

	lower := strings.ToLower(answer)
	best := ""
	for _, c := range candidates {
		name := strings.ToLower(strings.TrimSpace(c.CustomerName))
		if name == "" || !strings.Contains(lower, name) {
			continue
		}
		if len(c.CustomerName) > len(best) {
			best = c.CustomerName
		}
	}
	if best == "" {
		return "", errors.ExtractionError(errors.CodeInvalidResponse, "arbiter",
			fmt.Errorf("answer %q names no candidate", answer))
	}
	return best, nil
}
