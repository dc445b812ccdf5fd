package scanner

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"arbflow/internal/fees"
	"arbflow/internal/orderbook"
)

// Quote is the top of one exchange's book for a pair.
type Quote struct {
	Exchange string
	Bid      orderbook.Level
	Offer    orderbook.Level
}

// BestQuote extracts the highest bid and lowest offer of b. ok is false when
// a side is empty or the offer is not a positive price.
func BestQuote(exchange string, b *orderbook.Book) (Quote, bool) {
	if b == nil {
		return Quote{}, false
	}
	bid, okBid := b.BestBid()
	offer, okOffer := b.BestOffer()
	if !okBid || !okOffer || !offer.Price.IsPositive() {
		return Quote{}, false
	}
	return Quote{Exchange: exchange, Bid: bid, Offer: offer}, true
}

// Best is the cross-exchange top of book of a pair: where to sell (highest
// bid) and where to buy (lowest offer).
type Best struct {
	Pair          string
	BidExchange   string
	Bid           decimal.Decimal
	OfferExchange string
	Offer         decimal.Decimal
}

// Aggregate picks the maximum bid and minimum offer across quotes. Ties keep
// the first quote. ok is false with fewer than two quotes.
func Aggregate(pair string, quotes []Quote) (Best, bool) {
	if len(quotes) < 2 {
		return Best{}, false
	}
	best := Best{
		Pair:          pair,
		BidExchange:   quotes[0].Exchange,
		Bid:           quotes[0].Bid.Price,
		OfferExchange: quotes[0].Exchange,
		Offer:         quotes[0].Offer.Price,
	}
	for _, q := range quotes[1:] {
		if q.Bid.Price.GreaterThan(best.Bid) {
			best.Bid, best.BidExchange = q.Bid.Price, q.Exchange
		}
		if q.Offer.Price.LessThan(best.Offer) {
			best.Offer, best.OfferExchange = q.Offer.Price, q.Exchange
		}
	}
	return best, true
}

// RawROI is (bid - offer) / offer. offer must be positive.
func RawROI(bid, offer decimal.Decimal) decimal.Decimal {
	return bid.Sub(offer).Div(offer)
}

// Row is one reported opportunity. All rates are fractions.
type Row struct {
	Pair         string
	SellExchange string
	SellPrice    decimal.Decimal
	BuyExchange  string
	BuyPrice     decimal.Decimal
	RawROI       decimal.Decimal
	BuyFee       decimal.Decimal
	SellFee      decimal.Decimal
	TransferFee  decimal.Decimal
	NetROI       decimal.Decimal
}

// TotalFee is the sum of the three fee components.
func (r Row) TotalFee() decimal.Decimal {
	return r.BuyFee.Add(r.SellFee).Add(r.TransferFee)
}

// Evaluate prices the opportunity of best. Fees are only looked up when the
// raw ROI is positive. ok reports whether the row passes the filter:
// raw ROI strictly above total fees and at least minROI.
func Evaluate(ctx context.Context, best Best, src fees.Source, minROI decimal.Decimal) (Row, bool, error) {
	raw := RawROI(best.Bid, best.Offer)
	if !raw.IsPositive() {
		return Row{}, false, nil
	}

	buy, err := fees.Lookup(ctx, src, best.OfferExchange, best.Pair)
	if err != nil {
		return Row{}, false, err
	}
	sell, err := fees.Lookup(ctx, src, best.BidExchange, best.Pair)
	if err != nil {
		return Row{}, false, err
	}

	row := Row{
		Pair:         best.Pair,
		SellExchange: best.BidExchange,
		SellPrice:    best.Bid,
		BuyExchange:  best.OfferExchange,
		BuyPrice:     best.Offer,
		RawROI:       raw,
		BuyFee:       buy.Maker,
		SellFee:      sell.Maker,
		TransferFee:  decimal.Zero,
	}
	row.NetROI = raw.Sub(row.TotalFee())

	if !raw.GreaterThan(row.TotalFee()) || raw.LessThan(minROI) {
		return row, false, nil
	}
	return row, true, nil
}

// Rank orders rows by raw ROI, highest first, keeping the input order of
// equal rows.
func Rank(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].RawROI.GreaterThan(rows[j].RawROI)
	})
}
