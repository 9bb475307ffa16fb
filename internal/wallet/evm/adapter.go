// Package evm implements the eip155 ChainFamilyBackend: a Wallet Gateway
// backend over go-ethereum, grounded on the teacher's
// chainadapter/ethereum signer (ECDSA secp256k1, EIP-155/EIP-1559 aware).
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/orbitengine/pipeline/internal/model"
	"github.com/orbitengine/pipeline/internal/wallet"
)

// RPCDialer abstracts ethclient.Client for substitution in tests.
type RPCDialer interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Adapter is the eip155 family's local-keypair wallet backend.
type Adapter struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	client     RPCDialer
}

// NewAdapter builds an Adapter from a hex-encoded private key (with or
// without the "0x" prefix) and an already-dialed client.
func NewAdapter(privateKeyHex string, chainID int64, client RPCDialer) (*Adapter, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	privKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("evm: invalid private key: %w", err)
	}
	pubKey, ok := privKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("evm: failed to derive public key")
	}
	return &Adapter{
		privateKey: privKey,
		address:    crypto.PubkeyToAddress(*pubKey),
		chainID:    big.NewInt(chainID),
		client:     client,
	}, nil
}

// DialAdapter is a convenience constructor that dials an RPC endpoint via
// go-ethereum's ethclient.
func DialAdapter(ctx context.Context, privateKeyHex string, chainID int64, rpcURL string) (*Adapter, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("evm: failed to dial %s: %w", rpcURL, err)
	}
	return NewAdapter(privateKeyHex, chainID, client)
}

// Namespace identifies this backend's family.
func (a *Adapter) Namespace() model.Namespace { return model.NamespaceEIP155 }

// Address returns the checksummed address this adapter signs with.
func (a *Adapter) Address(namespace model.Namespace) (string, bool) {
	if namespace != model.NamespaceEIP155 {
		return "", false
	}
	return a.address.Hex(), true
}

// SignAndSend builds a legacy gas-price transaction for payload, signs it
// with the London signer, and broadcasts it, classifying any failure into a
// *wallet.DispatchError.
func (a *Adapter) SignAndSend(ctx context.Context, chainRef model.ChainRef, payload wallet.Payload) (string, error) {
	if chainRef.Namespace != model.NamespaceEIP155 {
		return "", wallet.NewFatalError(fmt.Sprintf("evm adapter cannot handle namespace %q", chainRef.Namespace), nil)
	}

	value, ok := new(big.Int).SetString(payload.EVMValueWei, 10)
	if !ok {
		return "", wallet.NewFatalError(fmt.Sprintf("invalid value %q", payload.EVMValueWei), nil)
	}

	nonce, err := a.client.PendingNonceAt(ctx, a.address)
	if err != nil {
		return "", classifyRPCError("fetching nonce", err)
	}

	gasPrice, err := a.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", classifyRPCError("suggesting gas price", err)
	}

	to := common.HexToAddress(payload.EVMTo)
	tx := types.NewTransaction(nonce, to, value, 21000+uint64(len(payload.EVMData))*68, gasPrice, payload.EVMData)

	signer := types.NewLondonSigner(a.chainID)
	signedTx, err := types.SignTx(tx, signer, a.privateKey)
	if err != nil {
		return "", wallet.NewFatalError("signing transaction", err)
	}

	if err := a.client.SendTransaction(ctx, signedTx); err != nil {
		return "", classifyRPCError("broadcasting transaction", err)
	}

	return signedTx.Hash().Hex(), nil
}

// classifyRPCError maps go-ethereum error strings to DispatchErrorKind.
// go-ethereum does not export typed sentinel errors for most JSON-RPC
// failures, so classification is string-based, matching the teacher's own
// error-code taxonomy approach (chainadapter/error.go) adapted to the
// errors this client actually surfaces.
func classifyRPCError(stage string, err error) *wallet.DispatchError {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "nonce too low"), strings.Contains(msg, "replacement transaction underpriced"):
		return wallet.NewRetryableError(stage, err)
	case strings.Contains(msg, "insufficient funds"):
		return wallet.NewFatalError(stage, err)
	case strings.Contains(msg, "already known"):
		return wallet.NewRetryableError(stage, err)
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many requests"):
		return wallet.NewRateLimitedError(stage, err)
	case errors.Is(err, context.DeadlineExceeded) || strings.Contains(msg, "timeout"):
		return wallet.NewRetryableError(stage, err)
	default:
		return wallet.NewRetryableError(stage, err)
	}
}
