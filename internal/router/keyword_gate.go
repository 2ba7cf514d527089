// Package router implements the Keyword Gate and Model Router ports
// (spec §4.E, §4.F): a pure-function classifier and an LLM-backed routing
// decision over the service registry's worker snapshot.
package router

import "strings"

// financialKeywords mirrors the original system's routing heuristic: any
// query containing one of these substrings is classified as financial
// rather than handled by the general reasoning path.
var financialKeywords = []string{
	// Trading instruments
	"bond", "rfq", "trader", "trading", "desk", "hy", "ig", "em", "rates",
	"spread", "bps", "basis point", "hit rate", "notional", "yield", "coupon",
	"isin", "cusip", "position", "order",
	// Live / real-time data
	"live", "real-time", "realtime", "current price", "market data", "market-data",
	"bid", "ask", "mid price", "quote", "pnl", "mark to market", "mtm",
	"intraday", "today", "right now", "current position",
	// AMPS-style pub/sub feeds
	"amps", "sow", "subscribe", "pub/sub", "topic", "publish", "state of world",
	// Historical data sources
	"kdb", "historical", "history", "6 month", "last month", "last quarter",
	// People/desks
	"best trader", "top trader", "strategy", "performance",
}

// IsFinancialQuery reports whether query should be routed to the financial
// pipeline rather than handled as a general-purpose question.
func IsFinancialQuery(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range financialKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
