package orderplanner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orbitengine/pipeline/internal/model"
	"github.com/orbitengine/pipeline/internal/orderplanner"
	"github.com/orbitengine/pipeline/internal/wallet"
)

type fakeQuoter struct {
	route Route
	err   error
}

type Route = orderplanner.Route

func (f fakeQuoter) Quote(ctx context.Context, order model.SwapOrder) (orderplanner.Route, error) {
	return f.route, f.err
}

func TestHTTPPlanner_ReturnsPayloadOnSuccessfulQuote(t *testing.T) {
	chainRef := model.ChainRef{Namespace: model.NamespaceEIP155, ID: "1"}
	payload := wallet.Payload{EVMTo: "0xabc", EVMValueWei: "1000"}
	p := orderplanner.NewHTTPPlanner(fakeQuoter{route: Route{ChainRef: chainRef, Payload: payload}})

	gotPayload, gotChainRef, err := p.Plan(context.Background(), model.SwapOrder{})
	require.NoError(t, err)
	assert.Equal(t, payload, gotPayload)
	assert.Equal(t, chainRef, gotChainRef)
}

func TestHTTPPlanner_ReturnsErrApprovalRequired(t *testing.T) {
	p := orderplanner.NewHTTPPlanner(fakeQuoter{route: Route{RequiresApproval: true}})

	_, _, err := p.Plan(context.Background(), model.SwapOrder{})
	assert.ErrorIs(t, err, orderplanner.ErrApprovalRequired)
}

func TestHTTPPlanner_PropagatesQuoteError(t *testing.T) {
	quoteErr := errors.New("aggregator unreachable")
	p := orderplanner.NewHTTPPlanner(fakeQuoter{err: quoteErr})

	_, _, err := p.Plan(context.Background(), model.SwapOrder{})
	assert.ErrorIs(t, err, quoteErr)
}
