package insight

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"spendlog/internal/analytics"
	"spendlog/internal/core"
)

// Unavailable is returned when neither the generator nor the fallback produced text.
const Unavailable = "(insight unavailable)"

const promptCategories = 3

// RenderSummary builds the prompt sent to the text generator.
func RenderSummary(res analytics.Result, userName string, allowance decimal.Decimal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User %s has a daily allowance of %s.\n", displayName(userName), core.FormatAmount(allowance))
	fmt.Fprintf(&b, "Days with expenses: %d.\n", res.DaysCounted)
	fmt.Fprintf(&b, "Actual spend: %s. Expected spend: %s.\n",
		core.FormatAmount(res.ActualSpend), core.FormatAmount(res.ExpectedSpend))
	fmt.Fprintf(&b, "Savings: %s. Overspend days: %d.\n", core.FormatAmount(res.Savings), res.OverspendDays)

	ranked := analytics.RankCategories(res)
	if len(ranked) > promptCategories {
		ranked = ranked[:promptCategories]
	}
	if len(ranked) > 0 {
		parts := make([]string, 0, len(ranked))
		for _, c := range ranked {
			parts = append(parts, fmt.Sprintf("%s %s", c.Category, core.FormatAmount(c.Amount)))
		}
		fmt.Fprintf(&b, "Top categories: %s.\n", strings.Join(parts, ", "))
	}
	b.WriteString("Write one or two friendly sentences summarizing this spending and one practical tip.")
	return b.String()
}

// Fallback produces a deterministic insight from the numbers alone.
func Fallback(res analytics.Result, userName string) string {
	name := displayName(userName)
	if res.IsEmpty() {
		return fmt.Sprintf("No expenses recorded for %s in this period.", name)
	}

	var b strings.Builder
	if res.Savings.IsNegative() {
		fmt.Fprintf(&b, "%s overspent by %s", name, core.FormatAmount(res.Savings.Neg()))
	} else {
		fmt.Fprintf(&b, "%s saved %s", name, core.FormatAmount(res.Savings))
	}
	fmt.Fprintf(&b, " over %d %s.", res.DaysCounted, plural(res.DaysCounted, "day", "days"))

	if res.OverspendDays > 0 {
		fmt.Fprintf(&b, " Spending went over the allowance on %d %s.",
			res.OverspendDays, plural(res.OverspendDays, "day", "days"))
	}
	if top, ok := res.TopCategory(); ok {
		fmt.Fprintf(&b, " Top category: %s (%s).", top.Category, core.FormatAmount(top.Amount))
	}
	return b.String()
}

func displayName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "This user"
	}
	return name
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
