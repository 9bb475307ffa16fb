package wallet

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/orbitengine/pipeline/internal/model"
)

// CustodialBackend is the production ChainFamilyBackend: it signs and
// sends through a custodial wallet provider's HTTP API rather than
// holding key material itself, grounded on the teacher's
// rpc.HTTPRPCClient (POST a JSON body, parse a JSON-RPC-shaped response,
// classify transport failures).
type CustodialBackend struct {
	namespace  model.Namespace
	baseURL    string
	walletID   string
	apiKey     string
	httpClient *http.Client
}

// CustodialConfig configures a CustodialBackend.
type CustodialConfig struct {
	Namespace model.Namespace
	BaseURL   string // e.g. "https://custodial.example.com"
	WalletID  string
	APIKey    string
	Timeout   time.Duration
}

// NewCustodialBackend builds a CustodialBackend bound to one wallet and
// namespace. A deployment wires one CustodialBackend per family into the
// Registry.
func NewCustodialBackend(cfg CustodialConfig) *CustodialBackend {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &CustodialBackend{
		namespace:  cfg.Namespace,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		walletID:   cfg.WalletID,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Namespace identifies this backend's family.
func (c *CustodialBackend) Namespace() model.Namespace { return c.namespace }

type custodialAddressResponse struct {
	Address string `json:"address"`
}

// Address queries the custodial provider for the wallet's address in this
// family.
func (c *CustodialBackend) Address(namespace model.Namespace) (string, bool) {
	if namespace != c.namespace {
		return "", false
	}
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/wallets/%s", c.baseURL, c.walletID), nil)
	if err != nil {
		return "", false
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var parsed custodialAddressResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", false
	}
	return parsed.Address, parsed.Address != ""
}

// custodialRPCRequest mirrors spec.md §6's wire envelope exactly: for the
// svm family, chain_type is "solana" and params carries a base64-encoded
// unsigned transaction; for eip155 it carries a JSON-RPC tx object.
type custodialRPCRequest struct {
	ChainType string      `json:"chain_type"`
	Method    string      `json:"method"`
	CAIP2     string      `json:"caip2"`
	Params    interface{} `json:"params"`
}

type custodialRPCResponse struct {
	Method string              `json:"method"`
	Data   *custodialRPCResult `json:"data,omitempty"`
	Error  *custodialRPCError  `json:"error,omitempty"`
}

type custodialRPCResult struct {
	Hash  string `json:"hash"`
	CAIP2 string `json:"caip2"`
}

type custodialRPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SignAndSend posts a sign-and-send request to POST /wallets/{id}/rpc,
// using "signAndSendTransaction" for svm and "eth_sendTransaction" for
// eip155, matching spec.md §6's external interface envelope.
func (c *CustodialBackend) SignAndSend(ctx context.Context, chainRef model.ChainRef, payload Payload) (string, error) {
	if chainRef.Namespace != c.namespace {
		return "", NewFatalError(fmt.Sprintf("custodial backend bound to %q, got %q", c.namespace, chainRef.Namespace), nil)
	}

	rpcReq := custodialRPCRequest{CAIP2: chainRef.String(), Params: buildParams(chainRef, payload)}
	switch chainRef.Namespace {
	case model.NamespaceEIP155:
		rpcReq.ChainType = "evm"
		rpcReq.Method = "eth_sendTransaction"
	case model.NamespaceSVM:
		rpcReq.ChainType = "solana"
		rpcReq.Method = "signAndSendTransaction"
	default:
		return "", NewFatalError(fmt.Sprintf("unsupported namespace %q", chainRef.Namespace), nil)
	}

	body, err := json.Marshal(rpcReq)
	if err != nil {
		return "", NewFatalError("marshaling custodial request", err)
	}

	url := fmt.Sprintf("%s/wallets/%s/rpc", c.baseURL, c.walletID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", NewFatalError("building custodial request", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", NewRetryableError("reading custodial response", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", NewUnauthorizedError(fmt.Sprintf("custodial provider returned HTTP %d", resp.StatusCode), nil)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", NewRateLimitedError("custodial provider rate limit", nil)
	}
	if resp.StatusCode >= 500 {
		return "", NewRetryableError(fmt.Sprintf("custodial provider HTTP %d", resp.StatusCode), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return "", NewFatalError(fmt.Sprintf("custodial provider HTTP %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	var parsed custodialRPCResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", NewRetryableError("parsing custodial response", err)
	}
	if parsed.Error != nil {
		return "", classifyCustodialError(parsed.Error)
	}
	if parsed.Data == nil || parsed.Data.Hash == "" {
		return "", NewRetryableError("custodial response missing transaction hash", nil)
	}
	return parsed.Data.Hash, nil
}

func (c *CustodialBackend) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

func buildParams(chainRef model.ChainRef, payload Payload) interface{} {
	switch chainRef.Namespace {
	case model.NamespaceEIP155:
		return map[string]interface{}{
			"transaction": map[string]interface{}{
				"to":    payload.EVMTo,
				"value": payload.EVMValueWei,
				"data":  fmt.Sprintf("0x%x", payload.EVMData),
			},
		}
	case model.NamespaceSVM:
		return map[string]interface{}{
			"transaction": base64.StdEncoding.EncodeToString(encodeUnsignedSVMTx(payload)),
			"encoding":    "base64",
		}
	default:
		return nil
	}
}

// encodeUnsignedSVMTx serializes the svm instruction fields into the byte
// form the custodial provider expects to sign. The wire format here is the
// provider's own unsigned-transaction encoding; this implementation uses a
// simple length-prefixed concatenation since the provider is external and
// its exact serialization is out of scope for this core.
func encodeUnsignedSVMTx(payload Payload) []byte {
	var buf bytes.Buffer
	buf.WriteString(payload.SVMProgramID)
	buf.WriteByte('\n')
	for _, acc := range payload.SVMAccounts {
		buf.WriteString(acc)
		buf.WriteByte(',')
	}
	buf.WriteByte('\n')
	buf.Write(payload.SVMInstructionData)
	return buf.Bytes()
}

func classifyTransportError(err error) *DispatchError {
	if strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "deadline exceeded") {
		return NewRetryableError("custodial provider request timed out", err)
	}
	return NewRetryableError("custodial provider unreachable", err)
}

func classifyCustodialError(rpcErr *custodialRPCError) *DispatchError {
	switch rpcErr.Code {
	case "UNAUTHORIZED", "ADDRESS_MISMATCH":
		return NewUnauthorizedError(rpcErr.Message, nil)
	case "RATE_LIMITED":
		return NewRateLimitedError(rpcErr.Message, nil)
	case "NONCE_TOO_LOW", "BLOCKHASH_EXPIRED", "NETWORK_CONGESTION", "RPC_TIMEOUT":
		return NewRetryableError(rpcErr.Message, nil)
	default:
		return NewFatalError(rpcErr.Message, nil)
	}
}

var _ Backend = (*CustodialBackend)(nil)
