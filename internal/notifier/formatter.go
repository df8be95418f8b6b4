package notifier

import (
	"fmt"
	"html"
	"strings"
	"time"

	"CryptoHist/internal/calculator"
	"CryptoHist/internal/collector"
	"CryptoHist/internal/model"
	"CryptoHist/internal/recorder"
)

// maxListedFailures caps the failed symbols spelled out in a batch report.
const maxListedFailures = 20

// FormatBatchReport formats the outcome of a batch run into a Telegram message.
func FormatBatchReport(run *recorder.BatchRun, failures []collector.SymbolFailure) string {
	var b strings.Builder

	icon := "✅"
	if run.Failed > 0 {
		icon = "⚠️"
	}
	fmt.Fprintf(&b, "%s <b>CryptoHist batch</b> | %s\n\n", icon, run.StartedAt.Format("2006-01-02"))
	fmt.Fprintf(&b, "Symbols: %d\n", run.Total)
	fmt.Fprintf(&b, "Succeeded: %d\n", run.Total-run.Failed)
	fmt.Fprintf(&b, "Failed: %d\n", run.Failed)
	fmt.Fprintf(&b, "Duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))

	if len(failures) > 0 {
		b.WriteString("\n<b>Failures:</b>\n")
		for i, f := range failures {
			if i == maxListedFailures {
				fmt.Fprintf(&b, "  … and %d more\n", len(failures)-maxListedFailures)
				break
			}
			fmt.Fprintf(&b, "  %s: %s\n", html.EscapeString(f.Symbol), html.EscapeString(f.Err.Error()))
		}
	}
	return b.String()
}

// FormatSummary formats series statistics for one symbol.
func FormatSummary(symbol string, r model.DateRange, sum *calculator.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>%s</b> | %s → %s\n\n", html.EscapeString(symbol),
		r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
	fmt.Fprintf(&b, "Records: %d\n", sum.Records)
	if sum.LastClose == nil {
		b.WriteString("No closing prices available")
		return b.String()
	}

	fmt.Fprintf(&b, "Last close: %s\n", num(sum.LastClose))
	fmt.Fprintf(&b, "SMA20: %s | SMA50: %s | SMA200: %s\n", num(sum.SMA20), num(sum.SMA50), num(sum.SMA200))
	fmt.Fprintf(&b, "RSI14: %.1f\n", sum.RSI14)
	fmt.Fprintf(&b, "Range: %s – %s", num(sum.Low), num(sum.High))
	if sum.Position != nil {
		fmt.Fprintf(&b, " (position %.0f%%)", *sum.Position*100)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Last 30: %s – %s\n", num(sum.Low30), num(sum.High30))
	return b.String()
}

func num(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}
