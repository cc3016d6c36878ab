package entities

import "time"

// WalletBalance is a per-user USD balance, mutated only through keyed entries.
type WalletBalance struct {
	UserID     int64     `db:"user_id" json:"user_id"`
	BalanceUSD Cents     `db:"balance_usd" json:"balance_usd_cents"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// WalletEntry is one balance mutation. DedupKey makes replays a no-op;
// AmountUSD is negative for debits.
type WalletEntry struct {
	DedupKey  string    `db:"dedup_key" json:"dedup_key"`
	UserID    int64     `db:"user_id" json:"user_id"`
	AmountUSD Cents     `db:"amount_usd" json:"amount_usd_cents"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
