package autocancel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/arkmire/steamtrade/offer"
)

func TestActiveUsesPolicyDefaultWithoutOverride(t *testing.T) {
	now := time.Now()
	o := &offer.Offer{State: offer.StateActive, UpdatedAt: now.Add(-time.Hour)}
	policy := Policy{CancelAfterMs: int64(30 * time.Minute / time.Millisecond)}

	assert.True(t, Active(o, 0, false, policy, now))
}

func TestActiveZeroThresholdNeverFires(t *testing.T) {
	now := time.Now()
	o := &offer.Offer{State: offer.StateActive, UpdatedAt: now.Add(-24 * time.Hour)}
	policy := Policy{CancelAfterMs: 0}

	assert.False(t, Active(o, 0, false, policy, now))
}

func TestActivePerOfferOverrideShadowsPolicy(t *testing.T) {
	now := time.Now()
	o := &offer.Offer{State: offer.StateActive, UpdatedAt: now.Add(-time.Minute)}
	policy := Policy{CancelAfterMs: int64(time.Hour / time.Millisecond)}

	assert.False(t, Active(o, int64(30*time.Minute/time.Millisecond), true, policy, now))
	assert.True(t, Active(o, int64(30*time.Second/time.Millisecond), true, policy, now))
}

func TestActiveIgnoresNonActiveState(t *testing.T) {
	now := time.Now()
	o := &offer.Offer{State: offer.StateCanceled, UpdatedAt: now.Add(-24 * time.Hour)}
	policy := Policy{CancelAfterMs: 1}

	assert.False(t, Active(o, 0, false, policy, now))
}

func TestPendingUsesCreatedAtNotUpdatedAt(t *testing.T) {
	now := time.Now()
	o := &offer.Offer{
		State:     offer.StateCreatedNeedsConfirmation,
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now,
	}
	policy := Policy{PendingCancelAfterMs: int64(30 * time.Minute / time.Millisecond)}

	assert.True(t, Pending(o, 0, false, policy, now))
}

func TestQuotaTrimNoopBelowQuota(t *testing.T) {
	candidates := []Candidate{{Offer: &offer.Offer{ID: "1"}, Timestamp: 1}}
	assert.Nil(t, QuotaTrim(candidates, 5, 0, time.Now()))
}

func TestQuotaTrimOldestFirst(t *testing.T) {
	now := time.Now()
	candidates := []Candidate{
		{Offer: &offer.Offer{ID: "newest"}, Timestamp: now.Unix() - 100},
		{Offer: &offer.Offer{ID: "oldest"}, Timestamp: now.Unix() - 10000},
		{Offer: &offer.Offer{ID: "middle"}, Timestamp: now.Unix() - 5000},
	}

	targets := QuotaTrim(candidates, 1, 0, now)
	assert.Len(t, targets, 2)
	assert.Equal(t, "oldest", targets[0].ID)
	assert.Equal(t, "middle", targets[1].ID)
}

func TestQuotaTrimSkipsOffersYoungerThanMinAge(t *testing.T) {
	now := time.Now()
	candidates := []Candidate{
		{Offer: &offer.Offer{ID: "oldest"}, Timestamp: now.Unix() - 60},
		{Offer: &offer.Offer{ID: "too-young"}, Timestamp: now.Unix() - 1},
	}

	minAgeMs := int64(time.Hour / time.Millisecond)
	targets := QuotaTrim(candidates, 1, minAgeMs, now)
	assert.Empty(t, targets, "the only excess candidate is younger than minAgeMs")
}
