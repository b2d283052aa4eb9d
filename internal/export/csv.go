// Package export renders expense data as the CSV documents users download.
package export

import (
	"fmt"
	"strings"
	"time"

	"expense-tracker/internal/domain"

	"github.com/shopspring/decimal"
)

const (
	Header = "Date,Description,Category,Amount (₹)"

	dateLayout      = "2/1/2006"
	timestampLayout = "2/1/2006, 3:04:05 pm"
	monthLayout     = "January 2006"
)

// ExpensesCSV renders one row per expense plus a blank line and a total row.
// An empty slice yields the header line alone.
func ExpensesCSV(expenses []domain.Expense) string {
	if len(expenses) == 0 {
		return Header + "\n"
	}

	rows := make([]string, 0, len(expenses)+3)
	rows = append(rows, Header)
	total := decimal.Zero
	for _, e := range expenses {
		rows = append(rows, fmt.Sprintf("%s,%s,%s,%s",
			e.Date.Format(dateLayout),
			quote(e.Description),
			e.Category,
			e.Amount.StringFixed(2),
		))
		total = total.Add(e.Amount)
	}
	rows = append(rows, "", "Total,,,"+total.StringFixed(2))
	return strings.Join(rows, "\n")
}

// quote always wraps the field and doubles embedded quotes.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// CategoryBreakdown sums expenses per category in first-seen order.
func CategoryBreakdown(expenses []domain.Expense) []domain.CategoryTotal {
	var out []domain.CategoryTotal
	index := map[domain.Category]int{}
	for _, e := range expenses {
		i, ok := index[e.Category]
		if !ok {
			i = len(out)
			index[e.Category] = i
			out = append(out, domain.CategoryTotal{Category: e.Category, Amount: decimal.Zero})
		}
		out[i].Amount = out[i].Amount.Add(e.Amount)
		out[i].Count++
	}
	return out
}

type BudgetReport struct {
	GeneratedAt time.Time
	UserName    string
	UserEmail   string
	// zero or negative omits the budget summary block
	MonthlyBudget decimal.Decimal
	Expenses      []domain.Expense
}

// BudgetReportCSV measures the budget against the expenses in the report,
// whatever period they cover.
func BudgetReportCSV(r BudgetReport) string {
	var b strings.Builder
	b.WriteString("EXPENSE REPORT\n")
	fmt.Fprintf(&b, "Generated: %s\n", r.GeneratedAt.Format(timestampLayout))
	fmt.Fprintf(&b, "User: %s (%s)\n", r.UserName, r.UserEmail)
	b.WriteString("\n")

	if r.MonthlyBudget.IsPositive() {
		spent := decimal.Zero
		for _, e := range r.Expenses {
			spent = spent.Add(e.Amount)
		}
		remaining := r.MonthlyBudget.Sub(spent)
		usage := spent.Div(r.MonthlyBudget).Mul(decimal.NewFromInt(100))

		b.WriteString("BUDGET SUMMARY\n")
		fmt.Fprintf(&b, "Monthly Budget,₹%s\n", r.MonthlyBudget.StringFixed(2))
		fmt.Fprintf(&b, "Total Spent,₹%s\n", spent.StringFixed(2))
		fmt.Fprintf(&b, "Remaining,₹%s\n", remaining.StringFixed(2))
		fmt.Fprintf(&b, "Usage,%s%%\n", usage.StringFixed(2))
		b.WriteString("\n")
	}

	b.WriteString("EXPENSES\n")
	b.WriteString(ExpensesCSV(r.Expenses))

	if len(r.Expenses) > 0 {
		b.WriteString("\n\nCATEGORY BREAKDOWN\n")
		b.WriteString("Category,Amount (₹),Count\n")
		for _, c := range CategoryBreakdown(r.Expenses) {
			fmt.Fprintf(&b, "%s,%s,%d\n", c.Category, c.Amount.StringFixed(2), c.Count)
		}
	}
	return b.String()
}

// MonthlySummaryCSV expects summaries newest first.
func MonthlySummaryCSV(generatedAt time.Time, summaries []domain.MonthlySummary) string {
	var b strings.Builder
	b.WriteString("MONTHLY EXPENSE SUMMARY\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", generatedAt.Format(timestampLayout))
	b.WriteString("Month,Total Expenses (₹),Transaction Count\n")

	total := decimal.Zero
	count := 0
	for _, s := range summaries {
		month := time.Date(s.Year, time.Month(s.Month), 1, 0, 0, 0, 0, time.UTC)
		fmt.Fprintf(&b, "%s,%s,%d\n", month.Format(monthLayout), s.TotalAmount.StringFixed(2), s.TotalCount)
		total = total.Add(s.TotalAmount)
		count += s.TotalCount
	}
	fmt.Fprintf(&b, "\nTotal,%s,%d", total.StringFixed(2), count)
	return b.String()
}

// Filename builds the attachment name, e.g. expenses_2024-01-31.csv.
func Filename(kind string, day time.Time) string {
	return fmt.Sprintf("%s_%s.csv", kind, day.Format(domain.DateLayout))
}
