// Package insight narrates analytics results as a short sentence.
//
// A Narrator asks an injected Generator first and falls back to a local
// deterministic sentence when the generator is missing, slow, broken or
// panics. Narrate never fails: callers always get non-empty text.
package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendlog/internal/analytics"
	"spendlog/internal/log"
)

// DefaultTimeout bounds one generator call.
const DefaultTimeout = 5 * time.Second

// Source says where an insight's text came from.
type Source string

const (
	SourceGenerated Source = "generated"
	SourceFallback  Source = "fallback"
)

// Reason says why the fallback was used.
type Reason string

const (
	ReasonNone          Reason = "none"
	ReasonNotConfigured Reason = "not_configured"
	ReasonTimeout       Reason = "timeout"
	ReasonUnavailable   Reason = "unavailable"
	ReasonMalformed     Reason = "malformed"
	ReasonPanic         Reason = "panic"
)

// Outcome is the result of one narration attempt.
type Outcome struct {
	Text   string
	Source Source
	Reason Reason
	Err    error
}

// Generated reports whether the text came from the generator.
func (o Outcome) Generated() bool { return o.Source == SourceGenerated }

// Narrator combines a Generator with the local fallback.
type Narrator struct {
	gen     Generator
	timeout time.Duration
	logger  *log.Logger
}

// NewNarrator wires a narrator. gen may be nil, in which case every call
// uses the fallback.
func NewNarrator(gen Generator, timeout time.Duration, logger *log.Logger) *Narrator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &Narrator{gen: gen, timeout: timeout, logger: logger.WithComponent(log.ComponentInsight)}
}

// Narrate returns the insight text for res.
func (n *Narrator) Narrate(ctx context.Context, res analytics.Result, userName string, allowance decimal.Decimal) string {
	return n.NarrateOutcome(ctx, res, userName, allowance).Text
}

// NarrateOutcome is Narrate with the source and fallback reason exposed.
func (n *Narrator) NarrateOutcome(ctx context.Context, res analytics.Result, userName string, allowance decimal.Decimal) Outcome {
	out := n.generate(ctx, RenderSummary(res, userName, allowance))
	if out.Source == SourceGenerated {
		return out
	}

	n.logger.WarnContext(ctx, "Insight generator unavailable, using fallback",
		log.FieldInsightReason, string(out.Reason),
		log.FieldError, errString(out.Err),
		log.FieldOperation, log.OpNarrate)

	out.Text = safeFallback(res, userName)
	return out
}

type genResult struct {
	text string
	err  error
	pan  any
}

// generate runs the generator in its own goroutine so that a call ignoring
// its context still cannot hold the request past the timeout.
func (n *Narrator) generate(ctx context.Context, prompt string) Outcome {
	if n == nil || n.gen == nil {
		return Outcome{Source: SourceFallback, Reason: ReasonNotConfigured}
	}

	callCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	done := make(chan genResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- genResult{pan: r}
			}
		}()
		text, err := n.gen.Generate(callCtx, prompt)
		done <- genResult{text: text, err: err}
	}()

	var r genResult
	select {
	case r = <-done:
	case <-callCtx.Done():
		return Outcome{Source: SourceFallback, Reason: classify(callCtx, callCtx.Err()), Err: callCtx.Err()}
	}

	switch {
	case r.pan != nil:
		return Outcome{Source: SourceFallback, Reason: ReasonPanic, Err: fmt.Errorf("generator panic: %v", r.pan)}
	case r.err != nil:
		return Outcome{Source: SourceFallback, Reason: classify(callCtx, r.err), Err: r.err}
	}
	text := strings.TrimSpace(r.text)
	if text == "" {
		return Outcome{Source: SourceFallback, Reason: ReasonMalformed, Err: ErrMalformedResponse}
	}
	return Outcome{Text: text, Source: SourceGenerated, Reason: ReasonNone}
}

func classify(ctx context.Context, err error) Reason {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return ReasonNotConfigured
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrMalformedResponse):
		return ReasonMalformed
	default:
		return ReasonUnavailable
	}
}

func safeFallback(res analytics.Result, userName string) (text string) {
	defer func() {
		if recover() != nil || strings.TrimSpace(text) == "" {
			text = Unavailable
		}
	}()
	return Fallback(res, userName)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
