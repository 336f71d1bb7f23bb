package risk

// defaultSectors is the static symbol to sector table used for correlation caps.
var defaultSectors = map[string]string{
	"RELIANCE":   "ENERGY",
	"ONGC":       "ENERGY",
	"BPCL":       "ENERGY",
	"NTPC":       "POWER",
	"POWERGRID":  "POWER",
	"TCS":        "IT",
	"INFY":       "IT",
	"WIPRO":      "IT",
	"HCLTECH":    "IT",
	"TECHM":      "IT",
	"HDFCBANK":   "BANKING",
	"ICICIBANK":  "BANKING",
	"SBIN":       "BANKING",
	"KOTAKBANK":  "BANKING",
	"AXISBANK":   "BANKING",
	"BAJFINANCE": "FINANCE",
	"HINDUNILVR": "FMCG",
	"ITC":        "FMCG",
	"NESTLEIND":  "FMCG",
	"TATAMOTORS": "AUTO",
	"MARUTI":     "AUTO",
	"M&M":        "AUTO",
	"SUNPHARMA":  "PHARMA",
	"DRREDDY":    "PHARMA",
	"CIPLA":      "PHARMA",
	"TATASTEEL":  "METALS",
	"JSWSTEEL":   "METALS",
	"HINDALCO":   "METALS",
	"LT":         "INFRA",
	"BHARTIARTL": "TELECOM",
	"AAPL":       "TECH",
	"MSFT":       "TECH",
	"NVDA":       "SEMIS",
	"AMD":        "SEMIS",
	"JPM":        "BANKING",
	"XOM":        "ENERGY",
}
