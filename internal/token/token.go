// Package token talks to the fungible-token service that holds donated funds.
//
// The campaign engine never stores balances itself. It pulls donations into
// the custody account with TransferFrom and pushes disbursements and refunds
// out with Transfer.
package token

import (
	"context"

	"crowdfund/internal/domain"
	"crowdfund/internal/ledger"
)

// Receipt identifies a completed transfer on the token service.
type Receipt struct {
	Ref string
}

// Service is the token-transfer contract used by the campaign engine.
//
// Errors wrap domain.ErrTransferFailed when the transfer definitely did not
// happen and domain.ErrTransferUnconfirmed when it may have.
type Service interface {
	// Custody is the account that holds campaign funds.
	Custody() domain.Address
	TransferFrom(ctx context.Context, from, to domain.Address, amount ledger.Amount) (Receipt, error)
	Transfer(ctx context.Context, to domain.Address, amount ledger.Amount) (Receipt, error)
	Allowance(ctx context.Context, owner, spender domain.Address) (ledger.Amount, error)
}
