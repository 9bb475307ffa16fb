// Package svm implements the svm ChainFamilyBackend: a Wallet Gateway
// backend over gagliardetto/solana-go, stamping outgoing transactions with
// the Blockhash Cache (C3) just before signing, per spec.md §4.3/§4.4.
package svm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/orbitengine/pipeline/internal/blockhash"
	"github.com/orbitengine/pipeline/internal/model"
	"github.com/orbitengine/pipeline/internal/wallet"
)

// Broadcaster abstracts solana-go's rpc.Client for substitution in tests.
type Broadcaster interface {
	SendTransactionWithOpts(ctx context.Context, tx *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
}

// BlockhashSource is the subset of blockhash.Cache the adapter depends on.
type BlockhashSource interface {
	GetBlockhash() (blockhash.Entry, error)
}

// Adapter is the svm family's local-keypair wallet backend.
type Adapter struct {
	privateKey solana.PrivateKey
	address    solana.PublicKey
	client     Broadcaster
	hashes     BlockhashSource
}

// NewAdapter builds an Adapter from a base58-encoded private key.
func NewAdapter(privateKeyBase58 string, client Broadcaster, hashes BlockhashSource) (*Adapter, error) {
	privKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("svm: invalid private key: %w", err)
	}
	return &Adapter{
		privateKey: privKey,
		address:    privKey.PublicKey(),
		client:     client,
		hashes:     hashes,
	}, nil
}

// Namespace identifies this backend's family.
func (a *Adapter) Namespace() model.Namespace { return model.NamespaceSVM }

// Address returns the base58-encoded public key this adapter signs with.
func (a *Adapter) Address(namespace model.Namespace) (string, bool) {
	if namespace != model.NamespaceSVM {
		return "", false
	}
	return a.address.String(), true
}

// SignAndSend stamps payload with the cached blockhash, signs it, and
// broadcasts it, classifying any failure into a *wallet.DispatchError.
func (a *Adapter) SignAndSend(ctx context.Context, chainRef model.ChainRef, payload wallet.Payload) (string, error) {
	if chainRef.Namespace != model.NamespaceSVM {
		return "", wallet.NewFatalError(fmt.Sprintf("svm adapter cannot handle namespace %q", chainRef.Namespace), nil)
	}

	entry, err := a.hashes.GetBlockhash()
	if err != nil {
		if errors.Is(err, blockhash.ErrStale) {
			return "", wallet.NewRetryableError("blockhash cache is stale", err)
		}
		return "", wallet.NewRetryableError("fetching blockhash", err)
	}

	accounts := make([]*solana.AccountMeta, 0, len(payload.SVMAccounts))
	for _, acc := range payload.SVMAccounts {
		pubKey, err := solana.PublicKeyFromBase58(acc)
		if err != nil {
			return "", wallet.NewFatalError(fmt.Sprintf("invalid account %q", acc), err)
		}
		accounts = append(accounts, &solana.AccountMeta{PublicKey: pubKey, IsWritable: true, IsSigner: false})
	}

	programID, err := solana.PublicKeyFromBase58(payload.SVMProgramID)
	if err != nil {
		return "", wallet.NewFatalError(fmt.Sprintf("invalid program id %q", payload.SVMProgramID), err)
	}

	instruction := solana.NewInstruction(programID, accounts, payload.SVMInstructionData)

	tx, err := solana.NewTransaction(
		[]solana.Instruction{instruction},
		entry.Hash,
		solana.TransactionPayer(a.address),
	)
	if err != nil {
		return "", wallet.NewFatalError("building transaction", err)
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(a.address) {
			return &a.privateKey
		}
		return nil
	})
	if err != nil {
		return "", wallet.NewFatalError("signing transaction", err)
	}

	sig, err := a.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{SkipPreflight: false})
	if err != nil {
		return "", classifyRPCError(err)
	}

	return sig.String(), nil
}

// classifyRPCError maps solana RPC error strings to DispatchErrorKind, the
// svm analogue of evm.classifyRPCError.
func classifyRPCError(err error) *wallet.DispatchError {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Blockhash not found"), strings.Contains(msg, "block height exceeded"):
		return wallet.NewRetryableError("stamped blockhash expired", err)
	case strings.Contains(msg, "insufficient funds"), strings.Contains(msg, "custom program error"):
		return wallet.NewFatalError("transaction rejected", err)
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"):
		return wallet.NewRateLimitedError("rpc throttled", err)
	default:
		return wallet.NewRetryableError("broadcasting transaction", err)
	}
}
