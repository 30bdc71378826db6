package treasury

import "github.com/slotledger/market_layer/internal/app/domain/token"

func slotFixture() token.Slot {
	return token.Slot{Name: "gold", MarketActive: true}
}
