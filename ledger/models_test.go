package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/doodhwala/billing/id"
	"github.com/doodhwala/billing/types"
)

func entry(debit, credit int64) *Entry {
	return &Entry{
		ID:         id.NewLedgerEntryID(),
		CustomerID: id.NewCustomerID(),
		Date:       types.Date(2024, time.June, 30),
		Type:       EntryAdjustment,
		Debit:      types.INR(debit),
		Credit:     types.INR(credit),
	}
}

func TestChain(t *testing.T) {
	first := entry(12000, 0)
	Chain(nil, first)
	if first.Seq != 1 || first.RunningBalance.Amount != 12000 {
		t.Fatalf("first: seq %d balance %d", first.Seq, first.RunningBalance.Amount)
	}

	second := entry(0, 5000)
	Chain(first, second)
	if second.Seq != 2 || second.RunningBalance.Amount != 7000 {
		t.Fatalf("second: seq %d balance %d", second.Seq, second.RunningBalance.Amount)
	}

	third := entry(0, 10000)
	Chain(second, third)
	if third.RunningBalance.Amount != -3000 {
		t.Errorf("third: balance %d, want -3000", third.RunningBalance.Amount)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(e *Entry)
		wantErr bool
	}{
		{"valid", func(*Entry) {}, false},
		{"no customer", func(e *Entry) { e.CustomerID = id.Nil }, true},
		{"bad type", func(e *Entry) { e.Type = "bonus" }, true},
		{"negative", func(e *Entry) { e.Debit = types.INR(-1) }, true},
		{"both zero", func(e *Entry) { e.Debit = types.INR(0) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := entry(100, 0)
			tt.mutate(e)
			err := e.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("got %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEntry) {
				t.Errorf("expected ErrInvalidEntry, got %v", err)
			}
		})
	}
}

func TestReplay(t *testing.T) {
	var entries []*Entry
	var prev *Entry
	for _, amt := range [][2]int64{{12000, 0}, {0, 5000}, {0, 7000}, {3000, 0}} {
		e := entry(amt[0], amt[1])
		Chain(prev, e)
		entries = append(entries, e)
		prev = e
	}

	r := Replay(id.NewCustomerID(), "inr", entries, types.INR(3000))
	if !r.Consistent() {
		t.Fatalf("expected consistent report, got %+v", r)
	}
	if r.Balance.Amount != 3000 {
		t.Errorf("Balance: got %d, want 3000", r.Balance.Amount)
	}

	entries[1].RunningBalance = types.INR(6000)
	r = Replay(id.NewCustomerID(), "inr", entries, types.INR(2000))
	if r.Consistent() {
		t.Fatal("expected inconsistency")
	}
	if len(r.Mismatches) != 1 || r.Mismatches[0].Seq != 2 {
		t.Errorf("Mismatches: got %+v", r.Mismatches)
	}
	if !r.CacheDrift {
		t.Error("expected cache drift")
	}

	entries[2].Seq = 5
	r = Replay(id.NewCustomerID(), "inr", entries, types.INR(3000))
	if len(r.SeqGaps) == 0 {
		t.Error("expected sequence gap")
	}
}

func TestReplayEmpty(t *testing.T) {
	r := Replay(id.NewCustomerID(), "inr", nil, types.Zero("inr"))
	if !r.Consistent() || !r.Balance.IsZero() {
		t.Errorf("empty ledger should replay to zero: %+v", r)
	}
}
