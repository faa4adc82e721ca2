package domain

import (
	"errors"

	"crowdfund/internal/ledger"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidAddress = errors.New("invalid address")

	// Validation: caller input rejected before any state change.
	ErrInvalidTargetAmount = errors.New("invalid target amount")
	ErrInvalidDeadline     = errors.New("invalid deadline")
	ErrInvalidBeneficiary  = errors.New("invalid beneficiary")
	ErrInvalidAmount       = errors.New("invalid amount")

	// Authorization.
	ErrNotCreator = errors.New("caller is not the campaign creator")

	// Lookup.
	ErrCampaignNotFound = errors.New("campaign not found")

	// State: legitimate precondition failures.
	ErrCampaignNotActive        = errors.New("campaign not active")
	ErrCampaignExpired          = errors.New("campaign expired")
	ErrCampaignAlreadyDisbursed = errors.New("campaign already disbursed")
	ErrGoalNotReached           = errors.New("goal not reached")
	ErrDeadlineNotReached       = errors.New("deadline not reached")
	ErrCampaignStillActive      = errors.New("campaign still active")
	ErrAlreadyRefunded          = errors.New("already refunded")
	ErrNoDonationFound          = errors.New("no donation found")
	ErrReconciliationPending    = errors.New("campaign has an open reconciliation")

	// Resource.
	ErrOverflow               = ledger.ErrOverflow
	ErrTransferFailed         = errors.New("token transfer failed")
	ErrTransferUnconfirmed    = errors.New("token transfer outcome unknown")
	ErrReconciliationRequired = errors.New("funds moved but ledger not updated; flagged for reconciliation")
)

// ErrorKind groups errors by how callers should react to them.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindAuthorization ErrorKind = "authorization"
	KindNotFound      ErrorKind = "not_found"
	KindState         ErrorKind = "state"
	KindResource      ErrorKind = "resource"
	KindInternal      ErrorKind = "internal"
)

var errorKinds = []struct {
	err  error
	kind ErrorKind
}{
	// Reconciliation first: it wraps the underlying cause, which may itself
	// be a resource or state error.
	{ErrReconciliationRequired, KindInternal},
	{ErrInvalidTargetAmount, KindValidation},
	{ErrInvalidDeadline, KindValidation},
	{ErrInvalidBeneficiary, KindValidation},
	{ErrInvalidAmount, KindValidation},
	{ErrInvalidAddress, KindValidation},
	{ledger.ErrInvalidAmountFormat, KindValidation},
	{ErrNotCreator, KindAuthorization},
	{ErrUnauthorized, KindAuthorization},
	{ErrCampaignNotFound, KindNotFound},
	{ErrNotFound, KindNotFound},
	{ErrCampaignNotActive, KindState},
	{ErrCampaignExpired, KindState},
	{ErrCampaignAlreadyDisbursed, KindState},
	{ErrGoalNotReached, KindState},
	{ErrDeadlineNotReached, KindState},
	{ErrCampaignStillActive, KindState},
	{ErrAlreadyRefunded, KindState},
	{ErrNoDonationFound, KindState},
	{ErrReconciliationPending, KindState},
	{ErrOverflow, KindResource},
	{ErrTransferFailed, KindResource},
	{ErrTransferUnconfirmed, KindResource},
}

// KindOf classifies err. Unknown errors are KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
