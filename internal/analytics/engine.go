// Package analytics turns a user's dated expenses into a spend-vs-allowance
// summary. Everything here is pure: no I/O, no shared state, safe to call
// from any number of goroutines.
package analytics

import (
	"sort"

	"github.com/shopspring/decimal"

	"spendlog/internal/core"
)

// Entry is the slice of an expense the engine needs.
type Entry struct {
	Amount   decimal.Decimal
	Date     core.Date
	Category string
}

// CategoryTotal is the summed amount of one normalized category.
type CategoryTotal struct {
	Category string
	Amount   decimal.Decimal
}

// Result is the computed summary for one user and window.
type Result struct {
	ExpectedSpend decimal.Decimal
	ActualSpend   decimal.Decimal
	Savings       decimal.Decimal
	DaysCounted   int
	OverspendDays int
	// Categories holds per-category totals in first-seen order.
	Categories []CategoryTotal
}

// FromExpenses projects stored expenses onto engine entries.
func FromExpenses(expenses []core.Expense) []Entry {
	entries := make([]Entry, 0, len(expenses))
	for _, e := range expenses {
		entries = append(entries, Entry{Amount: e.Amount, Date: e.Date, Category: e.Category})
	}
	return entries
}

// Compute aggregates entries against a daily allowance.
//
// Days are counted only when at least one entry falls on them, never by the
// span of the requested window. A day overspends when its total is strictly
// greater than the allowance. Entries without a date still count toward the
// actual spend and their category but are left out of day buckets.
//
// allowance must be non-negative; callers validate it.
func Compute(allowance decimal.Decimal, entries []Entry) Result {
	res := Result{
		ExpectedSpend: decimal.Zero,
		ActualSpend:   decimal.Zero,
		Savings:       decimal.Zero,
		Categories:    []CategoryTotal{},
	}
	if len(entries) == 0 {
		return res
	}

	daily := make(map[string]decimal.Decimal)
	catIndex := make(map[string]int)

	for _, e := range entries {
		res.ActualSpend = res.ActualSpend.Add(e.Amount)

		if !e.Date.IsZero() {
			day := e.Date.String()
			daily[day] = daily[day].Add(e.Amount)
		}

		cat := core.NormalizeCategory(e.Category)
		if i, ok := catIndex[cat]; ok {
			res.Categories[i].Amount = res.Categories[i].Amount.Add(e.Amount)
			continue
		}
		catIndex[cat] = len(res.Categories)
		res.Categories = append(res.Categories, CategoryTotal{Category: cat, Amount: e.Amount})
	}

	res.DaysCounted = len(daily)
	for _, total := range daily {
		if total.GreaterThan(allowance) {
			res.OverspendDays++
		}
	}

	res.ExpectedSpend = allowance.Mul(decimal.NewFromInt(int64(res.DaysCounted)))
	res.Savings = res.ExpectedSpend.Sub(res.ActualSpend)
	return res
}

// ByCategory returns the category totals as a map.
func (r Result) ByCategory() map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(r.Categories))
	for _, c := range r.Categories {
		m[c.Category] = c.Amount
	}
	return m
}

// IsEmpty reports whether nothing was aggregated.
func (r Result) IsEmpty() bool {
	return len(r.Categories) == 0
}

// TopCategory returns the highest-spend category. Ties go to the one seen first.
func (r Result) TopCategory() (CategoryTotal, bool) {
	if len(r.Categories) == 0 {
		return CategoryTotal{}, false
	}
	top := r.Categories[0]
	for _, c := range r.Categories[1:] {
		if c.Amount.GreaterThan(top.Amount) {
			top = c
		}
	}
	return top, true
}

// RankCategories returns a copy of the category totals, highest amount first.
// Equal amounts keep their first-seen order.
func RankCategories(r Result) []CategoryTotal {
	ranked := make([]CategoryTotal, len(r.Categories))
	copy(ranked, r.Categories)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Amount.GreaterThan(ranked[j].Amount)
	})
	return ranked
}
