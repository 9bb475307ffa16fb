package bus

import "github.com/orbitengine/pipeline/internal/model"

// Topic names the two logical channels the bus carries.
type Topic string

const (
	TopicPriceUpdates       Topic = "price_updates"
	TopicTransactionUpdates Topic = "transaction_updates"
)

// PriceUpdate is the wire shape published on TopicPriceUpdates.
type PriceUpdate struct {
	Asset      model.Asset `json:"pubkey"`
	Price      float64     `json:"price"`
	MarketCap  *float64    `json:"market_cap"`
	Timestamp  int64       `json:"timestamp"`
}

// TransactionEvent names the kind of webhook event on TopicTransactionUpdates.
type TransactionEvent string

const (
	TransactionConfirmed TransactionEvent = "confirmed"
	TransactionFailed    TransactionEvent = "failed"
)

// TransactionUpdate is the wire shape published on TopicTransactionUpdates,
// mirroring the wallet-provider webhook payload.
type TransactionUpdate struct {
	Event           TransactionEvent `json:"event"`
	TransactionID   string           `json:"transaction_id"`
	WalletID        string           `json:"wallet_id"`
	TransactionHash string           `json:"transaction_hash"`
	ChainRef        model.ChainRef   `json:"chain_id"`
}
