package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendlog/internal/analytics"
	"spendlog/internal/core"
	"spendlog/internal/log"
)

type stubGenerator struct {
	text  string
	err   error
	panic any
	delay time.Duration
	calls int
	last  string
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	s.calls++
	s.last = prompt
	if s.panic != nil {
		panic(s.panic)
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.text, s.err
}

func sampleResult() analytics.Result {
	return analytics.Compute(decimal.NewFromInt(20), []analytics.Entry{
		{Amount: decimal.NewFromInt(15), Date: core.NewDate(2025, 1, 1), Category: "Food"},
		{Amount: decimal.NewFromInt(10), Date: core.NewDate(2025, 1, 1), Category: "Food"},
		{Amount: decimal.NewFromInt(5), Date: core.NewDate(2025, 1, 2), Category: "Transport"},
	})
}

func TestNarrator_GeneratedText(t *testing.T) {
	gen := &stubGenerator{text: "  Nice work, Ada.  "}
	n := NewNarrator(gen, time.Second, log.Discard())

	out := n.NarrateOutcome(context.Background(), sampleResult(), "Ada", decimal.NewFromInt(20))
	assert.Equal(t, "Nice work, Ada.", out.Text)
	assert.Equal(t, SourceGenerated, out.Source)
	assert.Equal(t, ReasonNone, out.Reason)
	assert.True(t, out.Generated())
	assert.Contains(t, gen.last, "Ada")
	assert.Contains(t, gen.last, "Food 25.00")
}

func TestNarrator_FailureInjection(t *testing.T) {
	cases := []struct {
		name   string
		gen    Generator
		reason Reason
	}{
		{"nil generator", nil, ReasonNotConfigured},
		{"not configured error", &stubGenerator{err: ErrNotConfigured}, ReasonNotConfigured},
		{"network error", &stubGenerator{err: errors.New("connection refused")}, ReasonUnavailable},
		{"malformed", &stubGenerator{err: fmt.Errorf("%w: no choices", ErrMalformedResponse)}, ReasonMalformed},
		{"blank text", &stubGenerator{text: "   "}, ReasonMalformed},
		{"panic", &stubGenerator{panic: "boom"}, ReasonPanic},
		{"slow", &stubGenerator{text: "late", delay: 200 * time.Millisecond}, ReasonTimeout},
		{"deadline error", &stubGenerator{err: context.DeadlineExceeded}, ReasonTimeout},
	}

	results := []analytics.Result{sampleResult(), analytics.Compute(decimal.Zero, nil)}

	for _, tc := range cases {
		for i, res := range results {
			t.Run(fmt.Sprintf("%s/%d", tc.name, i), func(t *testing.T) {
				n := NewNarrator(tc.gen, 20*time.Millisecond, log.Discard())
				out := n.NarrateOutcome(context.Background(), res, "Ada", decimal.NewFromInt(20))
				assert.Equal(t, SourceFallback, out.Source)
				assert.Equal(t, tc.reason, out.Reason)
				assert.NotEmpty(t, strings.TrimSpace(out.Text))
				assert.Equal(t, Fallback(res, "Ada"), out.Text)
			})
		}
	}
}

func TestNarrator_TimeoutDoesNotBlock(t *testing.T) {
	gen := &stubGenerator{text: "late", delay: 2 * time.Second}
	n := NewNarrator(gen, 30*time.Millisecond, log.Discard())

	start := time.Now()
	text := n.Narrate(context.Background(), sampleResult(), "Ada", decimal.NewFromInt(20))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, Fallback(sampleResult(), "Ada"), text)
}

func TestNarrator_NilReceiverFallsBack(t *testing.T) {
	var n *Narrator
	out := n.generate(context.Background(), "prompt")
	assert.Equal(t, ReasonNotConfigured, out.Reason)
}

func TestFallback(t *testing.T) {
	text := Fallback(sampleResult(), "Ada")
	assert.Equal(t, "Ada saved 10.00 over 2 days. Spending went over the allowance on 1 day. Top category: Food (25.00).", text)

	over := analytics.Compute(decimal.NewFromInt(5), []analytics.Entry{
		{Amount: decimal.NewFromInt(8), Date: core.NewDate(2025, 1, 1)},
	})
	assert.Equal(t, "Ada overspent by 3.00 over 1 day. Spending went over the allowance on 1 day. Top category: Uncategorized (8.00).",
		Fallback(over, "Ada"))

	empty := analytics.Compute(decimal.NewFromInt(5), nil)
	assert.Equal(t, "No expenses recorded for Ada in this period.", Fallback(empty, "Ada"))
	assert.Equal(t, "No expenses recorded for This user in this period.", Fallback(empty, " "))
}

func TestRenderSummary(t *testing.T) {
	res := analytics.Compute(decimal.NewFromInt(100), []analytics.Entry{
		{Amount: decimal.NewFromInt(1), Date: core.NewDate(2025, 1, 1), Category: "A"},
		{Amount: decimal.NewFromInt(4), Date: core.NewDate(2025, 1, 1), Category: "B"},
		{Amount: decimal.NewFromInt(3), Date: core.NewDate(2025, 1, 1), Category: "C"},
		{Amount: decimal.NewFromInt(2), Date: core.NewDate(2025, 1, 1), Category: "D"},
	})
	prompt := RenderSummary(res, "Ada", decimal.NewFromInt(100))

	require.Contains(t, prompt, "daily allowance of 100.00")
	assert.Contains(t, prompt, "Days with expenses: 1.")
	assert.Contains(t, prompt, "Actual spend: 10.00. Expected spend: 100.00.")
	assert.Contains(t, prompt, "Savings: 90.00. Overspend days: 0.")
	assert.Contains(t, prompt, "Top categories: B 4.00, C 3.00, D 2.00.")
	assert.NotContains(t, prompt, "A 1.00")
}
