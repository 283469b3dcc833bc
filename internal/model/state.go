package model

// Purchase is one entry of the append-only purchase ledger.
type Purchase struct {
	Timestamp string  `json:"timestamp"`
	Recipient string  `json:"recipient"`
	GiftLink  string  `json:"giftLink"`
	Price     float64 `json:"price"`
	Currency  string  `json:"currency"`
}

// RunStatus is the API-facing snapshot of one tenant's engine run.
type RunStatus struct {
	Tenant         string     `json:"tenant"`
	Running        bool       `json:"running"`
	Alive          bool       `json:"alive"`
	BalanceStars   *int64     `json:"balanceStars,omitempty"`
	BalanceTon     *float64   `json:"balanceTon,omitempty"`
	Cycle          *int       `json:"cycle,omitempty"`
	UptimeSeconds  int64      `json:"uptimeSeconds,omitempty"`
	RecentLogs     []string   `json:"recentLogs,omitempty"`
	PurchasedGifts []Purchase `json:"purchasedGifts,omitempty"`
}
