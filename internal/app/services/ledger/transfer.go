package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/slotledger/market_layer/internal/app/domain/token"
	"github.com/slotledger/market_layer/internal/app/storage"
)

// TransferOwnership moves a whole token to a new owner, clearing the token
// operator and any value allowances granted by the previous owner. It is a
// store-level primitive for settlement flows that run inside their own
// transaction.
func TransferOwnership(ctx context.Context, st storage.LedgerStore, tokenID, newOwner string) (token.Token, error) {
	tok, err := st.GetToken(ctx, tokenID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return token.Token{}, fmt.Errorf("token %s: %w", tokenID, ErrTokenNotFound)
		}
		return token.Token{}, err
	}
	tok.Owner = newOwner
	tok.Operator = ""
	if err := st.ClearValueAllowances(ctx, tokenID); err != nil {
		return token.Token{}, err
	}
	return st.UpdateToken(ctx, tok)
}
