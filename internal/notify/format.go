package notify

import (
	"fmt"
	"strings"

	"signalflow/internal/models"
)

// FormatReport renders one cycle's report as the notification message:
// summary counts, the ranked buy/alert/sell sections, high-risk symbols and
// a footer. Empty sections are omitted.
func FormatReport(report models.Report) string {
	var b strings.Builder

	b.WriteString("Perpetual futures signal report\n")
	b.WriteString(fmt.Sprintf("Generated: %s\n", report.GeneratedAt.Format("2006-01-02 15:04 MST")))

	if report.NoData {
		b.WriteString("\nNo market data this cycle.\n")
		return b.String()
	}

	b.WriteString(fmt.Sprintf("\nSymbols scored: %d\n", report.TotalSymbols))
	b.WriteString(fmt.Sprintf("Buy %d | Sell %d | Alert %d | Strong %d\n",
		report.BuySignals, report.SellSignals, report.AlertSignals, report.StrongSignals))
	b.WriteString(fmt.Sprintf("Avg strength %.1f | Avg risk %.1f | Avg funding %.4f%%\n",
		report.AvgSignalStrength, report.AvgRiskScore, report.AvgFundingRate*100))
	if report.AvgOIMarketCapRatio.Valid {
		b.WriteString(fmt.Sprintf("Avg OI/market-cap %.3f | Avg OI surge %.2f\n",
			report.AvgOIMarketCapRatio.Value, report.AvgOISurgeRatio))
	}

	writeSection(&b, "Top buy candidates", report.TopBuySignals, func(rec models.SignalRecord) string {
		return fmt.Sprintf("%s strength %.0f risk %.0f OI/mc %s", rec.Symbol, rec.SignalStrength, rec.RiskScore, formatRatio(rec.OIMarketCapRatio))
	})
	writeSection(&b, "Funding alerts", report.TopAlertSignals, func(rec models.SignalRecord) string {
		return fmt.Sprintf("%s funding %.4f%% surge %.2fx", rec.Symbol, rec.FundingRate*100, rec.OISurgeRatio)
	})
	writeSection(&b, "Sell candidates", report.TopSellSignals, func(rec models.SignalRecord) string {
		return fmt.Sprintf("%s strength %.0f funding %.4f%%", rec.Symbol, rec.SignalStrength, rec.FundingRate*100)
	})
	writeSection(&b, "High risk", report.HighRisk, func(rec models.SignalRecord) string {
		return fmt.Sprintf("%s risk %.0f", rec.Symbol, rec.RiskScore)
	})

	b.WriteString("\nAutomated signals, not investment advice.\n")
	return b.String()
}

func writeSection(b *strings.Builder, title string, records []models.SignalRecord, line func(models.SignalRecord) string) {
	if len(records) == 0 {
		return
	}
	b.WriteString("\n" + title + ":\n")
	for i, rec := range records {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, line(rec)))
	}
}

func formatRatio(r models.Ratio) string {
	if !r.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%.3f", r.Value)
}
