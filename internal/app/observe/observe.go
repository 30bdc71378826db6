// Package observe provides the structured observation stream. Every service
// emits an observation after each successful state change; sinks fan them out
// to logs, Redis and in-process subscribers.
package observe

import (
	"encoding/json"
	"sync"
	"time"
)

// Kind classifies an observation.
type Kind string

const (
	// Ledger observations
	KindSlotRegistered Kind = "slot.registered"
	KindTokenMinted    Kind = "token.minted"
	KindTokenBurned    Kind = "token.burned"
	KindValueMoved     Kind = "value.moved"
	KindApprovalSet    Kind = "approval.set"

	// Marketplace observations
	KindListingSet       Kind = "listing.set"
	KindListingCanceled  Kind = "listing.canceled"
	KindTokenBought      Kind = "token.bought"
	KindOfferMade        Kind = "offer.made"
	KindOfferCanceled    Kind = "offer.canceled"
	KindOfferAccepted    Kind = "offer.accepted"
	KindAuctionCreated   Kind = "auction.created"
	KindBidPlaced        Kind = "bid.placed"
	KindAuctionExtended  Kind = "auction.extended"
	KindAuctionFinalized Kind = "auction.finalized"
	KindAuctionCanceled  Kind = "auction.canceled"

	// Treasury observations
	KindEscrowDeposited       Kind = "escrow.deposited"
	KindEscrowLocked          Kind = "escrow.locked"
	KindEscrowReleased        Kind = "escrow.released"
	KindRateSet               Kind = "rate.set"
	KindVoucherIssued         Kind = "voucher.issued"
	KindVoucherRedeemed       Kind = "voucher.redeemed"
	KindDisbursementProposed  Kind = "disbursement.proposed"
	KindDisbursementConfirmed Kind = "disbursement.confirmed"
	KindDisbursementExecuted  Kind = "disbursement.executed"
)

// Observation is one record in the stream. Fields carry operation-specific
// details as strings so sinks can serialize them without type knowledge.
type Observation struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	Actor     string            `json:"actor,omitempty"`
	TokenID   string            `json:"token_id,omitempty"`
	SlotID    string            `json:"slot_id,omitempty"`
	AuctionID string            `json:"auction_id,omitempty"`
	Amount    int64             `json:"amount,omitempty"`
	Currency  string            `json:"currency,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// String returns the JSON form.
func (o Observation) String() string {
	data, _ := json.Marshal(o)
	return string(data)
}

// Sink receives observations after each successful operation.
type Sink interface {
	Emit(o Observation)
}

// Handler processes observations delivered by a Ring subscription.
type Handler func(Observation)

// Filter decides whether a subscription handler sees an observation.
type Filter func(Observation) bool

// Ring is a thread-safe circular buffer of recent observations that also fans
// out to subscribers.
type Ring struct {
	mu       sync.RWMutex
	buf      []Observation
	size     int
	head     int
	count    int
	handlers []ringHandler
	nextSub  int64
}

type ringHandler struct {
	id      int64
	filter  Filter
	handler Handler
}

var _ Sink = (*Ring)(nil)

// NewRing creates a ring holding up to size observations.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = 1000
	}
	return &Ring{buf: make([]Observation, size), size: size}
}

// Emit records the observation and notifies subscribers.
func (r *Ring) Emit(o Observation) {
	r.mu.Lock()
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}
	if o.ID == "" {
		o.ID = time.Now().UTC().Format("20060102150405.000000000")
	}

	r.buf[r.head] = o
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}

	handlers := make([]ringHandler, len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.Unlock()

	// Notify outside the lock
	for _, h := range handlers {
		if h.filter == nil || h.filter(o) {
			h.handler(o)
		}
	}
}

// Subscribe registers a handler for every observation and returns an
// unsubscribe function.
func (r *Ring) Subscribe(handler Handler) func() {
	return r.SubscribeFiltered(nil, handler)
}

// SubscribeFiltered registers a handler with a filter.
func (r *Ring) SubscribeFiltered(filter Filter, handler Handler) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.handlers = append(r.handlers, ringHandler{id: id, filter: filter, handler: handler})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, h := range r.handlers {
			if h.id == id {
				r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
				return
			}
		}
	}
}

// Recent returns up to n observations, newest first.
func (r *Ring) Recent(n int) []Observation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || r.count == 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}
	result := make([]Observation, n)
	for i := 0; i < n; i++ {
		idx := (r.head - 1 - i + r.size) % r.size
		result[i] = r.buf[idx]
	}
	return result
}

// RecentByKind returns up to n observations of one kind, newest first.
func (r *Ring) RecentByKind(kind Kind, n int) []Observation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n <= 0 || r.count == 0 {
		return nil
	}
	var result []Observation
	for i := 0; i < r.count && len(result) < n; i++ {
		idx := (r.head - 1 - i + r.size) % r.size
		if r.buf[idx].Kind == kind {
			result = append(result, r.buf[idx])
		}
	}
	return result
}

// Count returns the number of buffered observations.
func (r *Ring) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Multi fans one observation out to several sinks.
type Multi []Sink

func (m Multi) Emit(o Observation) {
	for _, s := range m {
		s.Emit(o)
	}
}

// Noop discards all observations.
type Noop struct{}

func (Noop) Emit(Observation) {}
