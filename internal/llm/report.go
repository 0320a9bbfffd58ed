package llm

import "strings"

// ReportContext selects which semantic vocabulary and prompt set a run
// generates and formats against.
type ReportContext string

const (
	// ReportSalesAnalytics is the default context, backed by the
	// sales_analytics table.
	ReportSalesAnalytics ReportContext = "sales-analytics"
	// ReportStockInventory is the godown-wise inventory context,
	// backed by the stock_gw table.
	ReportStockInventory ReportContext = "stock-inventory"
)

// ParseReportContext maps a request-supplied report identifier onto a
// known context. Anything unrecognized falls back to sales analytics.
func ParseReportContext(id string) ReportContext {
	if strings.EqualFold(strings.TrimSpace(id), string(ReportStockInventory)) {
		return ReportStockInventory
	}
	return ReportSalesAnalytics
}
