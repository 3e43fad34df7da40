// Package autocancel implements the pure predicates spec.md §4.F
// names: no network access, no Store mutation — callers (the poller)
// invoke C.decline themselves on a positive predicate and update Store
// only after that call succeeds.
package autocancel

import (
	"sort"
	"time"

	"github.com/arkmire/steamtrade/offer"
)

// Policy is the manager-level defaults a per-offer Store override can
// shadow.
type Policy struct {
	CancelAfterMs        int64
	PendingCancelAfterMs int64
	QuotaMax             int64
	QuotaMinAgeMs        int64
}

// Active reports whether O (state=Active) has aged past its
// cancel_time, whichever of the per-offer override or the policy
// default applies. now and the offer's updated time are compared as
// wall-clock time.Time values.
func Active(o *offer.Offer, overrideMs int64, hasOverride bool, policy Policy, now time.Time) bool {
	if o.State != offer.StateActive {
		return false
	}
	threshold := policy.CancelAfterMs
	if hasOverride {
		threshold = overrideMs
	}
	if threshold <= 0 {
		return false
	}
	elapsed := now.Sub(o.UpdatedAt)
	return elapsed >= time.Duration(threshold)*time.Millisecond
}

// Pending reports whether O (state=CreatedNeedsConfirmation) has aged
// past its pending_cancel_time, whichever of the per-offer override or
// the policy default applies.
func Pending(o *offer.Offer, overrideMs int64, hasOverride bool, policy Policy, now time.Time) bool {
	if o.State != offer.StateCreatedNeedsConfirmation {
		return false
	}
	threshold := policy.PendingCancelAfterMs
	if hasOverride {
		threshold = overrideMs
	}
	if threshold <= 0 {
		return false
	}
	elapsed := now.Sub(o.CreatedAt)
	return elapsed >= time.Duration(threshold)*time.Millisecond
}

// Candidate is one entry in the quota-trim selection input: an active
// sent offer plus the Store timestamp used to order it.
type Candidate struct {
	Offer     *offer.Offer
	Timestamp int64 // Store timestamps[id], seconds
}

// QuotaTrim implements spec.md §4.D step 7 / §8 property 6: given the
// union of active sent offers (deduplicated by id before calling this),
// select the oldest-by-timestamp offers to cancel down to quotaMax,
// skipping any younger than minAgeMs. The result preserves oldest-first
// order; callers cancel in that order and stop on the first failure or
// continue past it per their own policy.
func QuotaTrim(candidates []Candidate, quotaMax int64, minAgeMs int64, now time.Time) []*offer.Offer {
	if quotaMax <= 0 || int64(len(candidates)) < quotaMax {
		return nil
	}
	sorted := make([]Candidate, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	excess := int64(len(sorted)) - quotaMax
	out := make([]*offer.Offer, 0, excess)
	minAge := time.Duration(minAgeMs) * time.Millisecond
	for _, c := range sorted {
		if int64(len(out)) >= excess {
			break
		}
		age := now.Sub(time.Unix(c.Timestamp, 0))
		if age < minAge {
			continue
		}
		out = append(out, c.Offer)
	}
	return out
}
