package models

/////////////////////////////////////////////////////////////////////////////
/////////////////////////////// COINBASE REST ///////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// CoinbaseProduct is one entry of GET /api/v3/brokerage/products. Price and
// volume are left as strings since the API returns "" for new listings.
type CoinbaseProduct struct {
	ProductID       string `json:"product_id"`
	BaseCurrencyID  string `json:"base_currency_id"`
	QuoteCurrencyID string `json:"quote_currency_id"`
	Price           string `json:"price"`
	Volume24h       string `json:"volume_24h"`
	Status          string `json:"status"`
	IsDisabled      bool   `json:"is_disabled"`
	TradingDisabled bool   `json:"trading_disabled"`
}

type CoinbaseProductsResponse struct {
	Products    []CoinbaseProduct `json:"products"`
	NumProducts int               `json:"num_products"`
}

// CoinbaseTransactionSummary is the subset of GET
// /api/v3/brokerage/transaction_summary used for fee rates.
type CoinbaseTransactionSummary struct {
	FeeTier struct {
		PricingTier  string `json:"pricing_tier"`
		MakerFeeRate string `json:"maker_fee_rate"`
		TakerFeeRate string `json:"taker_fee_rate"`
	} `json:"fee_tier"`
}
