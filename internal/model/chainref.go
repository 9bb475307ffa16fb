// Package model defines the shared domain types for pipelines, conditions,
// actions, and chain references that flow between the engine, the wallet
// gateway, and the indexer.
package model

import (
	"fmt"
	"strings"
)

// Asset is an opaque price-bearing identifier. For chain-native assets it is
// a mint/contract address; the literal NowAsset denotes "no price gating".
type Asset string

// NowAsset is the distinguished asset literal meaning "fires immediately,
// no price feed required." It still has an entry in the engine's by-asset
// index so Now-only pipelines are evaluated on the next tick.
const NowAsset Asset = "NOW"

// Namespace identifies a wallet-gateway backend family.
type Namespace string

const (
	// NamespaceEIP155 is the EVM-style family; its ChainRef ids are numeric
	// chain ids (eip155:1, eip155:8453, eip155:42161, ...).
	NamespaceEIP155 Namespace = "eip155"

	// NamespaceSVM is the single alternative-chain family named in the
	// design: a fixed identifier of the form svm:<genesis-hash-prefix>.
	NamespaceSVM Namespace = "svm"
)

// ChainRef is a canonical <namespace>:<id> identifier naming a blockchain
// network, e.g. "eip155:42161" or "svm:5eykt4U".
type ChainRef struct {
	Namespace Namespace
	ID        string
}

// ParseChainRef parses a "<namespace>:<id>" string into a ChainRef.
func ParseChainRef(s string) (ChainRef, error) {
	ns, id, ok := strings.Cut(s, ":")
	if !ok || ns == "" || id == "" {
		return ChainRef{}, fmt.Errorf("model: malformed chain reference %q", s)
	}
	return ChainRef{Namespace: Namespace(ns), ID: id}, nil
}

// String renders the canonical "<namespace>:<id>" form.
func (c ChainRef) String() string {
	return fmt.Sprintf("%s:%s", c.Namespace, c.ID)
}

// PriceSnapshot maps asset to its last known positive price. It is not a
// point-in-time consistent snapshot across assets — callers only get
// per-asset freshness guarantees.
type PriceSnapshot map[Asset]float64

// Get returns the price for an asset and whether it is known.
func (p PriceSnapshot) Get(a Asset) (float64, bool) {
	price, ok := p[a]
	return price, ok
}
