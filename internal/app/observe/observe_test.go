package observe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingRecent(t *testing.T) {
	r := NewRing(3)
	r.Emit(Observation{Kind: KindTokenMinted, TokenID: "1"})
	r.Emit(Observation{Kind: KindValueMoved, TokenID: "2"})
	r.Emit(Observation{Kind: KindTokenBurned, TokenID: "3"})
	r.Emit(Observation{Kind: KindValueMoved, TokenID: "4"})

	recent := r.Recent(10)
	assert.Len(t, recent, 3)
	assert.Equal(t, "4", recent[0].TokenID)
	assert.Equal(t, "2", recent[2].TokenID)
	assert.Equal(t, 3, r.Count())
}

func TestRingRecentByKind(t *testing.T) {
	r := NewRing(10)
	r.Emit(Observation{Kind: KindTokenMinted, TokenID: "1"})
	r.Emit(Observation{Kind: KindValueMoved, TokenID: "2"})
	r.Emit(Observation{Kind: KindValueMoved, TokenID: "3"})

	moved := r.RecentByKind(KindValueMoved, 10)
	assert.Len(t, moved, 2)
	assert.Equal(t, "3", moved[0].TokenID)
}

func TestRingSubscribe(t *testing.T) {
	r := NewRing(10)

	var seen []Observation
	unsubscribe := r.Subscribe(func(o Observation) { seen = append(seen, o) })

	r.Emit(Observation{Kind: KindOfferMade})
	assert.Len(t, seen, 1)

	unsubscribe()
	r.Emit(Observation{Kind: KindOfferCanceled})
	assert.Len(t, seen, 1)
}

func TestRingSubscribeFiltered(t *testing.T) {
	r := NewRing(10)

	var seen []Observation
	r.SubscribeFiltered(
		func(o Observation) bool { return o.Kind == KindBidPlaced },
		func(o Observation) { seen = append(seen, o) },
	)

	r.Emit(Observation{Kind: KindAuctionCreated})
	r.Emit(Observation{Kind: KindBidPlaced})
	assert.Len(t, seen, 1)
	assert.Equal(t, KindBidPlaced, seen[0].Kind)
}

func TestMulti(t *testing.T) {
	a, b := NewRing(5), NewRing(5)
	Multi{a, b}.Emit(Observation{Kind: KindVoucherIssued})
	assert.Equal(t, 1, a.Count())
	assert.Equal(t, 1, b.Count())
}

func TestEmitAssignsIDAndTimestamp(t *testing.T) {
	r := NewRing(5)
	r.Emit(Observation{Kind: KindRateSet})
	o := r.Recent(1)[0]
	assert.NotEmpty(t, o.ID)
	assert.False(t, o.Timestamp.IsZero())
}
