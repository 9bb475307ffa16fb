package orderplanner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/orbitengine/pipeline/internal/model"
	"github.com/orbitengine/pipeline/internal/wallet"
)

// HTTPQuoter is the default Quoter: it posts a SwapOrder to an external
// aggregator endpoint and parses back a resolved Route, the same
// POST-JSON/parse-JSON shape the teacher's rpc.HTTPRPCClient uses for its
// own external calls.
type HTTPQuoter struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPQuoter builds an HTTPQuoter posting quote requests to endpoint.
func NewHTTPQuoter(endpoint string, timeout time.Duration) *HTTPQuoter {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPQuoter{endpoint: endpoint, httpClient: &http.Client{Timeout: timeout}}
}

type quoteRequest struct {
	FromChain  model.ChainRef `json:"from_chain"`
	ToChain    model.ChainRef `json:"to_chain"`
	InputMint  model.Asset    `json:"input_mint"`
	OutputMint model.Asset    `json:"output_mint"`
	AmountIn   string         `json:"amount_base_units"`
}

type quoteResponse struct {
	ChainRef         model.ChainRef `json:"chain_ref"`
	RequiresApproval bool           `json:"requires_approval"`
	Payload          wallet.Payload `json:"payload"`
}

// Quote posts order to the aggregator endpoint and parses its Route.
func (q *HTTPQuoter) Quote(ctx context.Context, order model.SwapOrder) (Route, error) {
	body, err := json.Marshal(quoteRequest{
		FromChain:  order.FromChain,
		ToChain:    order.ToChain,
		InputMint:  order.InputAsset,
		OutputMint: order.OutputAsset,
		AmountIn:   order.AmountBaseUnit,
	})
	if err != nil {
		return Route{}, fmt.Errorf("orderplanner: marshaling quote request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.endpoint, bytes.NewReader(body))
	if err != nil {
		return Route{}, fmt.Errorf("orderplanner: building quote request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return Route{}, fmt.Errorf("orderplanner: quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Route{}, fmt.Errorf("orderplanner: quote endpoint returned status %d", resp.StatusCode)
	}

	var parsed quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Route{}, fmt.Errorf("orderplanner: decoding quote response: %w", err)
	}

	return Route{
		ChainRef:         parsed.ChainRef,
		RequiresApproval: parsed.RequiresApproval,
		Payload:          parsed.Payload,
	}, nil
}

var _ Quoter = (*HTTPQuoter)(nil)
