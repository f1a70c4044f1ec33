package wallet

import (
	"github.com/adeyemio/tradefair-backend/pkg/db/models"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
)

// DominantSource returns the revenue stream funding the larger share of
// the given entries. An aggregate debit_payout can span both streams, so
// it is stamped with whichever one carried most of the money.
func DominantSource(entries []models.LedgerEntry) enums.LedgerSource {
	totals := map[enums.LedgerSource]int64{}
	for i := range entries {
		totals[entries[i].Source] += entries[i].AmountMinor
	}
	if totals[enums.LedgerSourceEvent] > totals[enums.LedgerSourceStore] {
		return enums.LedgerSourceEvent
	}
	return enums.LedgerSourceStore
}
