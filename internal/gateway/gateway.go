// Package gateway wraps the two-phase payment primitive: reserve funds up
// to a maximum with a hold, then later capture some amount up to that
// maximum or release the hold without charging.
package gateway

import "context"

// Hold status vocabulary surfaced to the billing core.
const (
	StatusRequiresCapture = "requires_capture"
	StatusSucceeded       = "succeeded"
	StatusCanceled        = "canceled"
	StatusFailed          = "failed"
)

type AuthorizeInput struct {
	CustomerRef string
	// AmountMinor is the maximum chargeable amount in minor units.
	AmountMinor int64
	Currency    string
	Metadata    map[string]string
}

type AuthorizeResult struct {
	HoldRef string
	Status  string
}

type CaptureResult struct {
	ChargeRef     string
	CapturedMinor int64
	Status        string
}

type HoldStatus struct {
	Status string
}

// PaymentGateway is the external payment collaborator. A capture or
// release against an already-resolved hold is unsafe, so callers never
// retry automatically; retry is always a human decision.
type PaymentGateway interface {
	Authorize(ctx context.Context, input AuthorizeInput) (*AuthorizeResult, error)
	Capture(ctx context.Context, holdRef string, amountMinor int64) (*CaptureResult, error)
	Release(ctx context.Context, holdRef string) error
	Inspect(ctx context.Context, holdRef string) (*HoldStatus, error)
	// MinimumChargeMinor is the smallest amount the provider will accept
	// for the currency; settlements below it become releases.
	MinimumChargeMinor(currency string) int64
}
