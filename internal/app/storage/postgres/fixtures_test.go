package postgres

import (
	"github.com/slotledger/market_layer/internal/app/domain/token"
)

func slotFixture() token.Slot {
	return token.Slot{Name: "gold", MarketActive: true, RoyaltyBps: 500}
}

func tokenFixture() token.Token {
	return token.Token{ID: "tok-1", SlotID: "slot-1", Owner: "alice", Value: 250}
}
