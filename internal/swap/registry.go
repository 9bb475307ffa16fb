package swap

// Known DEX program ids, pinned from the teacher corpus's own
// constants.rs (original_source/listen-data/src/constants.rs). Only
// programs this registry can actually decode are listed here.
const (
	ProgramRaydiumAMMV4  = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	ProgramOrcaWhirlpool = "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"
	ProgramMeteoraDLMM   = "LBUZKhRxPF3XUpBCjp4YzTKgLccjZhTSDM9YuVaPwxo"
)

// discriminant keys a single instruction variant within a program.
// Raydium AMM v4 is a pre-Anchor program: its instruction data starts
// with a single enum-index byte rather than an 8-byte Anchor sighash, so
// only byte 0 of Discriminant is meaningful for it; the other two
// programs use full 8-byte Anchor-style discriminants. decoderKey packs
// both conventions into the same map by keying on the full 8 bytes and
// registering Raydium's variants pre-zero-padded.
type decoderKey struct {
	programID    string
	discriminant [8]byte
}

// decodeFunc converts one matched instruction into a NormalizedSwap, given
// the enclosing transaction for pool/signer/slot/signature metadata.
type decodeFunc func(ix Instruction, tx RawTransaction) (NormalizedSwap, bool)

// Registry maps (program_id, discriminant) to a decode function, the Go
// analogue of the corpus's per-program Decoder trait objects (carbon's
// RaydiumAmmV4Decoder, etc.) collapsed into a single lookup table.
type Registry struct {
	decoders map[decoderKey]decodeFunc
}

// NewRegistry builds a Registry pre-populated with the known DEX programs.
func NewRegistry() *Registry {
	r := &Registry{decoders: make(map[decoderKey]decodeFunc)}
	r.register(ProgramRaydiumAMMV4, raydiumSwapBaseIn, decodeAMMSwap)
	r.register(ProgramRaydiumAMMV4, raydiumSwapBaseOut, decodeAMMSwap)
	r.register(ProgramOrcaWhirlpool, whirlpoolSwap, decodeAMMSwap)
	r.register(ProgramMeteoraDLMM, meteoraSwap, decodeAMMSwap)
	return r
}

// Raydium AMM v4's pre-Anchor instruction indices (publicly documented:
// SwapBaseIn = 9, SwapBaseOut = 11). Orca Whirlpool and Meteora DLMM use
// Anchor sighash discriminants for their swap instructions.
var (
	raydiumSwapBaseIn  = [8]byte{9}
	raydiumSwapBaseOut = [8]byte{11}
	whirlpoolSwap      = [8]byte{0xf8, 0xc6, 0x9e, 0x91, 0xe1, 0x75, 0x87, 0xc8}
	meteoraSwap        = [8]byte{0xf8, 0xc6, 0x9e, 0x91, 0xe1, 0x75, 0x87, 0xc8}
)

func (r *Registry) register(programID string, discriminant [8]byte, fn decodeFunc) {
	r.decoders[decoderKey{programID: programID, discriminant: discriminant}] = fn
}

// Lookup returns the decode function registered for (programID,
// discriminant), or ok=false if this program/instruction is unknown.
func (r *Registry) Lookup(programID string, discriminant [8]byte) (decodeFunc, bool) {
	fn, ok := r.decoders[decoderKey{programID: programID, discriminant: discriminant}]
	return fn, ok
}

// decodeAMMSwap is shared by every registered program: every supported DEX
// here is a classic two-leg constant-product or concentrated-liquidity AMM
// swap, so the decode shape (two token deltas -> NormalizedSwap) is
// identical; only instruction recognition differs per program.
func decodeAMMSwap(ix Instruction, tx RawTransaction) (NormalizedSwap, bool) {
	if len(ix.Deltas) != 2 {
		return NormalizedSwap{}, false
	}
	base, quote := ix.Deltas[0], ix.Deltas[1]
	return NormalizedSwap{
		PoolAddress: tx.PoolAddress,
		BaseMint:    base.Mint,
		QuoteMint:   quote.Mint,
		BaseDelta:   base.Delta,
		QuoteDelta:  quote.Delta,
		Signer:      tx.Signer,
		Signature:   tx.Signature,
		Slot:        tx.Slot,
		Timestamp:   tx.Timestamp,
	}, true
}
