// Package swap implements the Swap Decoder (C7): given one transaction's
// instruction list annotated with per-account token-balance deltas, it
// produces zero or more NormalizedSwap records by matching instructions
// against a fixed registry of known DEX programs, keyed by
// (program_id, discriminant) — the shape the teacher corpus's own indexer
// uses (Raydium AMM v4, keyed by RAYDIUM_AMM_V4_PROGRAM_ID in
// constants.rs), expressed in Go as a map lookup instead of a decoder
// trait object.
package swap

import (
	"time"
)

// TokenDelta is one account's net token balance change within a
// transaction, the raw material the decoder scans for swap shape.
type TokenDelta struct {
	Mint    string
	Account string
	Delta   float64 // signed, raw base units (decimals not yet applied)
}

// Instruction is one parsed instruction from a transaction, carrying just
// enough to identify and decode a swap: which program it targets, its
// discriminant (the first bytes of instruction data that select the
// instruction variant), and the token deltas observed across the whole
// transaction (Raydium-style AMMs move both legs via inner instructions,
// not the top-level instruction's own accounts, so deltas are scoped to
// the transaction, not the instruction).
type Instruction struct {
	ProgramID    string
	Discriminant [8]byte
	Deltas       []TokenDelta
}

// RawTransaction is the decoder's unit of work: a transaction's
// instruction list plus the metadata NormalizedSwap requires.
type RawTransaction struct {
	Signature    string
	Slot         uint64
	Timestamp    time.Time
	Signer       string
	PoolAddress  string
	Failed       bool
	Instructions []Instruction
}

// NormalizedSwap is C7's output record, matching spec.md §4.7 exactly.
type NormalizedSwap struct {
	PoolAddress string
	BaseMint    string
	QuoteMint   string
	BaseDelta   float64
	QuoteDelta  float64
	Signer      string
	Signature   string
	Slot        uint64
	Timestamp   time.Time
}
