// Package wallet implements the Wallet Gateway (C4): a uniform
// sign-and-send interface over custodial and local wallets across chain
// families, matching the teacher's chainadapter Signer/BlockchainProvider
// split but collapsed to the single sign-and-send contract spec.md names.
package wallet

import (
	"context"

	"github.com/orbitengine/pipeline/internal/model"
)

// Payload is an opaque, chain-family-specific unsigned transaction. For
// eip155 it is an EVM call description; for svm it is an unsigned
// transaction to be stamped with a blockhash before signing.
type Payload struct {
	// EVM fields (namespace == eip155).
	EVMTo       string
	EVMValueWei string // decimal string, avoids float precision loss
	EVMData     []byte

	// SVM fields (namespace == svm).
	SVMInstructionData []byte
	SVMAccounts        []string
	SVMProgramID       string
}

// Gateway is the uniform sign-and-send interface C6 dispatches through.
type Gateway interface {
	// Address returns the address this gateway controls for a namespace,
	// or ok=false if the gateway has no key for that family.
	Address(namespace model.Namespace) (address string, ok bool)

	// SignAndSend signs payload for chainRef and broadcasts it, returning
	// the transaction hash. Errors are always *DispatchError.
	SignAndSend(ctx context.Context, chainRef model.ChainRef, payload Payload) (txHash string, err error)
}

// Backend is a per-namespace implementation selected by Registry, matching
// SPEC_FULL.md's "ChainFamilyBackend per namespace" design.
type Backend interface {
	Gateway
	Namespace() model.Namespace
}
