package ledger

import (
	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/types"
)

// Mismatch is an entry whose stored balance differs from the replayed one.
type Mismatch struct {
	Seq      int64            `json:"seq"`
	EntryID  id.LedgerEntryID `json:"entry_id"`
	Stored   types.Money      `json:"stored"`
	Expected types.Money      `json:"expected"`
}

// Report is the result of replaying a customer's ledger from zero.
type Report struct {
	CustomerID    id.CustomerID `json:"customer_id"`
	Entries       int           `json:"entries"`
	Balance       types.Money   `json:"balance"`
	CachedBalance types.Money   `json:"cached_balance"`
	Mismatches    []Mismatch    `json:"mismatches,omitempty"`
	SeqGaps       []int64       `json:"seq_gaps,omitempty"`
	CacheDrift    bool          `json:"cache_drift"`
}

// Consistent reports whether the replay found no problems.
func (r *Report) Consistent() bool {
	return len(r.Mismatches) == 0 && len(r.SeqGaps) == 0 && !r.CacheDrift
}

// Replay recomputes running balances from zero over entries in insertion
// order and compares them with the stored values and the customer's
// cached balance.
func Replay(customerID id.CustomerID, currency string, entries []*Entry, cached types.Money) *Report {
	r := &Report{
		CustomerID:    customerID,
		Entries:       len(entries),
		CachedBalance: cached,
	}

	balance := types.Zero(currency)
	var seq int64
	for _, e := range entries {
		seq++
		if e.Seq != seq {
			r.SeqGaps = append(r.SeqGaps, seq)
			seq = e.Seq
		}
		balance = balance.Add(e.Delta())
		if !balance.Equal(e.RunningBalance) {
			r.Mismatches = append(r.Mismatches, Mismatch{
				Seq:      e.Seq,
				EntryID:  e.ID,
				Stored:   e.RunningBalance,
				Expected: balance,
			})
		}
	}

	r.Balance = balance
	r.CacheDrift = !balance.Equal(cached)
	return r
}
