package wallet

// LocalConfig holds the local-keypair material for both chain families,
// used for testing and CLI use per spec.md §4.4(a). This package does not
// construct the concrete per-family backends (internal/wallet/evm,
// internal/wallet/svm): callers build them and pass them to
// NewLocalRegistry, which avoids an import cycle.
type LocalConfig struct {
	EVMPrivateKeyHex    string
	EVMChainID          int64
	EVMRPCURL           string
	SVMPrivateKeyBase58 string
	SVMRPCURL           string
}

// NewLocalRegistry wires pre-built eip155 and svm backends into a single
// Gateway. Either backend may be nil if that family is not configured for
// this deployment; SignAndSend against an unconfigured namespace returns a
// Fatal DispatchError.
func NewLocalRegistry(evmBackend, svmBackend Backend) *Registry {
	r := NewRegistry()
	if evmBackend != nil {
		r.Register(evmBackend)
	}
	if svmBackend != nil {
		r.Register(svmBackend)
	}
	return r
}
