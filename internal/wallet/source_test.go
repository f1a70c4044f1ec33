package wallet

import (
	"testing"

	"github.com/adeyemio/tradefair-backend/pkg/db/models"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
)

func TestDominantSourceWeighsByAmount(t *testing.T) {
	entries := []models.LedgerEntry{
		{Source: enums.LedgerSourceEvent, AmountMinor: 700},
		{Source: enums.LedgerSourceStore, AmountMinor: 300},
	}
	if got := DominantSource(entries); got != enums.LedgerSourceEvent {
		t.Fatalf("expected event to dominate, got %s", got)
	}

	entries = []models.LedgerEntry{
		{Source: enums.LedgerSourceEvent, AmountMinor: 200},
		{Source: enums.LedgerSourceStore, AmountMinor: 250},
		{Source: enums.LedgerSourceEvent, AmountMinor: 40},
	}
	if got := DominantSource(entries); got != enums.LedgerSourceStore {
		t.Fatalf("expected store to dominate, got %s", got)
	}

	if got := DominantSource(nil); got != enums.LedgerSourceStore {
		t.Fatalf("expected store fallback for no entries, got %s", got)
	}
}
