// Package orderplanner pins the external order-planner collaborator
// boundary named in spec.md §4.6/§6: given a SwapOrder, it performs quote
// fetch, route selection, and (for eip155) an approval-gap check, and
// returns a wallet.Payload ready for C4 to sign, or an ApprovalRequired
// result if an ERC-20 allowance must be raised first.
package orderplanner

import (
	"context"
	"errors"
	"fmt"

	"github.com/orbitengine/pipeline/internal/model"
	"github.com/orbitengine/pipeline/internal/wallet"
)

// ErrApprovalRequired is returned by Plan when the eip155 input asset is a
// non-native ERC-20 without sufficient allowance. Per SPEC_FULL.md's
// resolution of spec.md §9 open question (ii), the engine treats this as
// Retryable rather than auto-approving an unbounded allowance.
var ErrApprovalRequired = errors.New("orderplanner: approval required before order can be sent")

// Planner is the order-planner boundary. Plan may be called repeatedly for
// the same order (e.g. across retries); it performs a fresh quote each
// time since prices move between attempts.
type Planner interface {
	Plan(ctx context.Context, order model.SwapOrder) (wallet.Payload, model.ChainRef, error)
}

// Quoter abstracts a route/quote source, the part of Plan that varies per
// deployment (aggregator API, DEX router ABI, …).
type Quoter interface {
	Quote(ctx context.Context, order model.SwapOrder) (Route, error)
}

// Route is the planner's resolved execution path for one order.
type Route struct {
	ChainRef        model.ChainRef
	RequiresApproval bool
	Payload         wallet.Payload
}

// HTTPPlanner is the default Planner: it delegates quoting to an injected
// Quoter (typically an HTTP aggregator client) and applies the
// approval-gap policy itself so that policy is not duplicated per Quoter
// implementation.
type HTTPPlanner struct {
	quoter Quoter
}

// NewHTTPPlanner wraps a Quoter with the approval-gap policy.
func NewHTTPPlanner(quoter Quoter) *HTTPPlanner {
	return &HTTPPlanner{quoter: quoter}
}

// Plan resolves order to a ready-to-sign payload, or ErrApprovalRequired.
func (p *HTTPPlanner) Plan(ctx context.Context, order model.SwapOrder) (wallet.Payload, model.ChainRef, error) {
	route, err := p.quoter.Quote(ctx, order)
	if err != nil {
		return wallet.Payload{}, model.ChainRef{}, fmt.Errorf("orderplanner: quote failed: %w", err)
	}
	if route.RequiresApproval {
		return wallet.Payload{}, model.ChainRef{}, ErrApprovalRequired
	}
	return route.Payload, route.ChainRef, nil
}

var _ Planner = (*HTTPPlanner)(nil)
