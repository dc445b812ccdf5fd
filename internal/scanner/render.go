package scanner

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

// clearScreen moves the cursor home and clears the terminal.
const clearScreen = "\033[H\033[2J"

var hundred = decimal.NewFromInt(100)

var header = []string{"PAIR", "SELL", "SPRICE", "BUY", "BPRICE", "DIFF%", "BFEE%", "SFEE%", "MFEE%", "ROI%"}

func percent(d decimal.Decimal, places int32) string {
	return d.Mul(hundred).StringFixed(places)
}

// Render redraws the opportunity table.
func Render(w io.Writer, now time.Time, rows []Row) error {
	if _, err := fmt.Fprint(w, clearScreen); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%s\nFound %d potential pairs.\n\n", now.Format("15:04:05 MST"), len(rows)); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, r := range rows {
		table.Append([]string{
			r.Pair,
			r.SellExchange,
			r.SellPrice.String(),
			r.BuyExchange,
			r.BuyPrice.String(),
			percent(r.RawROI, 2),
			percent(r.BuyFee, 3),
			percent(r.SellFee, 3),
			percent(r.TransferFee, 3),
			percent(r.NetROI, 4),
		})
	}
	table.Render()
	return nil
}

// RenderQuotes redraws the per-exchange top of book of one pair.
func RenderQuotes(w io.Writer, now time.Time, pair string, quotes []Quote) error {
	if _, err := fmt.Fprint(w, clearScreen); err != nil {
		return err
	}
	if len(quotes) == 0 {
		_, err := fmt.Fprintf(w, "no data - %s\n", pair)
		return err
	}
	if _, err := fmt.Fprintf(w, "%s\t%s\n", pair, now.Format("15:04:05")); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"EXCHANGE", "BID", "BID QTY", "OFFER", "OFFER QTY"})
	table.SetAutoFormatHeaders(false)
	for _, q := range quotes {
		table.Append([]string{
			q.Exchange,
			q.Bid.Price.String(),
			q.Bid.Quantity.String(),
			q.Offer.Price.String(),
			q.Offer.Quantity.String(),
		})
	}
	table.Render()
	return nil
}
