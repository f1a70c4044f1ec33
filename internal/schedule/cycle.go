package schedule

import (
	"time"

	"github.com/adeyemio/tradefair-backend/pkg/db/models"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
)

// CycleKeyLayout formats a payout occurrence into its cycle key: the
// calendar date of the payout run in the vendor's timezone.
const CycleKeyLayout = "2006-01-02"

// NextPayoutAt computes the next payout occurrence strictly after now.
//
// The weekly tier runs on the configured payout weekday and hour. Faster
// tiers run every TimelineDays, anchored to the Unix epoch day count in
// the vendor's timezone, at the payout hour. The anchor keeps the stride
// stable across restarts without storing per-vendor cursor state.
func NextPayoutAt(sched *models.PayoutSchedule, loc *time.Location, now time.Time) time.Time {
	local := now.In(loc)

	if sched.Tier == enums.PayoutTierWeekly {
		return nextWeekday(local, time.Weekday(sched.PayoutWeekday), sched.PayoutHour)
	}

	stride := sched.TimelineDays
	if stride <= 0 {
		stride = 1
	}

	day := epochDay(local)
	for offset := 0; ; offset++ {
		candidateDay := day + offset
		if candidateDay%stride != 0 {
			continue
		}
		candidate := atHour(dateOfEpochDay(candidateDay, loc), sched.PayoutHour)
		if candidate.After(local) {
			return candidate
		}
	}
}

// CutoffAt computes the cutoff immediately preceding the given payout
// occurrence. Entries whose target payout time falls before the cutoff
// belong to that payout's cycle; later ones roll to a future cycle.
func CutoffAt(sched *models.PayoutSchedule, loc *time.Location, payoutAt time.Time) time.Time {
	local := payoutAt.In(loc)

	if sched.Tier == enums.PayoutTierWeekly {
		return prevWeekday(local, time.Weekday(sched.CutoffWeekday), sched.CutoffHour)
	}

	cutoff := atHour(local, sched.CutoffHour)
	for !cutoff.Before(local) {
		cutoff = cutoff.AddDate(0, 0, -1)
	}
	return cutoff
}

// AssignCycle picks the payout occurrence a newly eligible entry is
// batched into. An entry landing after the next payout's cutoff has
// missed that run and rolls to the following occurrence.
func AssignCycle(sched *models.PayoutSchedule, loc *time.Location, from time.Time) (time.Time, string) {
	payoutAt := NextPayoutAt(sched, loc, from)
	if from.After(CutoffAt(sched, loc, payoutAt)) {
		payoutAt = NextPayoutAt(sched, loc, payoutAt)
	}
	return payoutAt, payoutAt.In(loc).Format(CycleKeyLayout)
}

// CycleKeyFor returns the cycle key of the payout occurrence the given
// target time belongs to: the first payout at-or-after the target.
func CycleKeyFor(sched *models.PayoutSchedule, loc *time.Location, target time.Time) string {
	payoutAt := NextPayoutAt(sched, loc, target.Add(-time.Nanosecond))
	return payoutAt.In(loc).Format(CycleKeyLayout)
}

// DueCycleKey returns the cycle key of the most recent payout occurrence
// at or before now, which is the cycle the processor should be settling.
func DueCycleKey(sched *models.PayoutSchedule, loc *time.Location, now time.Time) string {
	local := now.In(loc)

	if sched.Tier == enums.PayoutTierWeekly {
		prev := prevWeekday(local.Add(time.Nanosecond), time.Weekday(sched.PayoutWeekday), sched.PayoutHour)
		return prev.Format(CycleKeyLayout)
	}

	stride := sched.TimelineDays
	if stride <= 0 {
		stride = 1
	}

	day := epochDay(local)
	for offset := 0; ; offset++ {
		candidateDay := day - offset
		if candidateDay%stride != 0 && candidateDay >= 0 {
			continue
		}
		candidate := atHour(dateOfEpochDay(candidateDay, loc), sched.PayoutHour)
		if !candidate.After(local) {
			return candidate.Format(CycleKeyLayout)
		}
	}
}

func nextWeekday(after time.Time, weekday time.Weekday, hour int) time.Time {
	candidate := atHour(after, hour)
	for candidate.Weekday() != weekday || !candidate.After(after) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func prevWeekday(before time.Time, weekday time.Weekday, hour int) time.Time {
	candidate := atHour(before, hour)
	for candidate.Weekday() != weekday || !candidate.Before(before) {
		candidate = candidate.AddDate(0, 0, -1)
	}
	return candidate
}

func atHour(t time.Time, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, 0, 0, 0, t.Location())
}

func epochDay(t time.Time) int {
	_, offset := t.Zone()
	return int((t.Unix() + int64(offset)) / 86400)
}

func dateOfEpochDay(day int, loc *time.Location) time.Time {
	utc := time.Unix(int64(day)*86400, 0).UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, loc)
}
