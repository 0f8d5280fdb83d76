// Package summarizer turns a document and a prompt into a typed structured
// response. It is the only place extraction talks to a model.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sp1500_float/pkg/core/errs"
	"sp1500_float/pkg/core/llm"
	"sp1500_float/pkg/core/prompt"
	"sp1500_float/pkg/logging"
	"sp1500_float/pkg/models"

	"github.com/phuslu/log"
)

// Summarizer answers a prompt about a document and decodes the structured
// response into out. Failures are errs.ErrSummarization.
type Summarizer interface {
	Summarize(ctx context.Context, doc *models.Document, req prompt.Request, out any) error
}

// Func adapts a function to Summarizer.
type Func func(ctx context.Context, doc *models.Document, req prompt.Request, out any) error

func (f Func) Summarize(ctx context.Context, doc *models.Document, req prompt.Request, out any) error {
	return f(ctx, doc, req, out)
}

// DefaultTimeout bounds one summarizer call when none is configured.
const DefaultTimeout = 5 * time.Minute

// LLMSummarizer runs prompts on an llm.Provider.
type LLMSummarizer struct {
	provider llm.Provider
	timeout  time.Duration
	logger   *log.Logger
}

var _ Summarizer = (*LLMSummarizer)(nil)

func NewLLMSummarizer(provider llm.Provider, timeout time.Duration, logger *log.Logger) *LLMSummarizer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &LLMSummarizer{provider: provider, timeout: timeout, logger: logging.OrNop(logger)}
}

func (s *LLMSummarizer) Summarize(ctx context.Context, doc *models.Document, req prompt.Request, out any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()
	raw, err := s.provider.Generate(ctx, llm.Request{
		System:         req.System,
		Prompt:         req.User,
		ResponseSchema: req.Schema,
		Attachments:    attachments(doc),
	})
	if err != nil {
		// SDKs do not always wrap the context error on timeout.
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return errs.Summarization(req.ID, err)
	}

	if err := SmartParse(raw, out); err != nil {
		return errs.Summarization(req.ID, err)
	}

	s.logger.Debug().
		Str("prompt", req.ID).
		Str("prompt_version", req.Version).
		Str("provider", s.provider.Name()).
		Str("document", docID(doc)).
		Dur("elapsed", time.Since(started)).
		Msg("summarized document")
	return nil
}

func attachments(doc *models.Document) []llm.Attachment {
	if doc == nil {
		return nil
	}
	return []llm.Attachment{{
		Name:     doc.Source,
		MIMEType: doc.MIMEType,
		Data:     doc.Data,
		Text:     doc.Text,
	}}
}

func docID(doc *models.Document) string {
	if doc == nil {
		return ""
	}
	return doc.ID
}
