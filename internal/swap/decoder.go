package swap

import "math"

// Metrics records the operator-visible counters spec.md §4.7 calls for.
// Decoder never requires a Metrics; a nil Metrics is a silent no-op, the
// same convention the teacher's own metrics.NoOpMetrics establishes.
type Metrics interface {
	IncUnexpectedTokenCount()
	IncDustDropped()
}

// Decoder is C7: it scans a transaction's instructions against Registry
// and emits zero or more NormalizedSwap records.
type Decoder struct {
	registry      *Registry
	dustThreshold float64
	metrics       Metrics
}

// Config bundles Decoder's tunables.
type Config struct {
	Registry *Registry

	// DustThreshold is the minimum base-side magnitude a swap must clear
	// to be emitted, per spec.md §4.7 and boundary scenario S6.
	DustThreshold float64

	Metrics Metrics
}

// New builds a Decoder. A nil Registry uses NewRegistry(); DustThreshold
// defaults to 0 (no filtering) if unset.
func New(cfg Config) *Decoder {
	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Decoder{registry: registry, dustThreshold: cfg.DustThreshold, metrics: cfg.Metrics}
}

// Decode produces every NormalizedSwap in tx. Failed transactions are
// skipped outright per spec.md §4.7.
func (d *Decoder) Decode(tx RawTransaction) []NormalizedSwap {
	if tx.Failed {
		return nil
	}

	out := make([]NormalizedSwap, 0, len(tx.Instructions))
	for _, ix := range tx.Instructions {
		fn, ok := d.registry.Lookup(ix.ProgramID, ix.Discriminant)
		if !ok {
			continue
		}
		if len(ix.Deltas) != 2 {
			d.incUnexpectedTokenCount()
			continue
		}

		swap, ok := fn(ix, tx)
		if !ok {
			d.incUnexpectedTokenCount()
			continue
		}

		if swap.BaseDelta == 0 || swap.QuoteDelta == 0 {
			continue
		}
		if math.Abs(swap.BaseDelta) < d.dustThreshold {
			d.incDustDropped()
			continue
		}

		out = append(out, swap)
	}
	return out
}

func (d *Decoder) incUnexpectedTokenCount() {
	if d.metrics != nil {
		d.metrics.IncUnexpectedTokenCount()
	}
}

func (d *Decoder) incDustDropped() {
	if d.metrics != nil {
		d.metrics.IncDustDropped()
	}
}
