// Package deeplink builds outbound Venmo payment-request URLs.
//
// The link opens the Venmo app or site with the request pre-filled; nothing
// comes back. Whether the recipient actually pays is invisible to us.
package deeplink

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/shopspring/decimal"
)

const venmoBaseURL = "https://venmo.com/"

// Txn is the Venmo transaction direction.
type Txn string

const (
	// TxnPay pre-fills a payment to the recipient.
	TxnPay Txn = "pay"
	// TxnCharge pre-fills a request from the recipient.
	TxnCharge Txn = "charge"
)

// PaymentLink describes one pre-filled Venmo transaction.
type PaymentLink struct {
	// Txn is the direction, pay or charge.
	Txn Txn

	// Recipient is the counterparty's phone number, digits-only.
	Recipient string

	// Amount is the dollar amount; rendered with two decimals.
	Amount decimal.Decimal

	// Note is the free-text expense description shown in the request.
	Note string
}

// URL renders the deep link.
func (l PaymentLink) URL() (string, error) {
	switch l.Txn {
	case TxnPay, TxnCharge:
	default:
		return "", fmt.Errorf("txn must be %q or %q, got %q", TxnPay, TxnCharge, l.Txn)
	}
	if l.Recipient == "" {
		return "", fmt.Errorf("recipient is required")
	}
	if l.Amount.IsNegative() {
		return "", fmt.Errorf("amount cannot be negative, got %s", l.Amount)
	}

	params := url.Values{}
	params.Set("txn", string(l.Txn))
	params.Set("recipients", l.Recipient)
	params.Set("amount", l.Amount.StringFixed(2))
	params.Set("note", l.Note)

	return venmoBaseURL + "?" + params.Encode(), nil
}

// Launcher opens a URL in a new browsing context.
type Launcher interface {
	OpenURL(ctx context.Context, url string) error
}

// Open builds the link and hands it to the launcher. Fire-and-forget: launch
// failures are logged, never returned, since no caller can do anything about
// a browser that refused to open.
func Open(ctx context.Context, launcher Launcher, link PaymentLink, logger *slog.Logger) {
	u, err := link.URL()
	if err != nil {
		logger.Error("refusing to open malformed payment link", "error", err)
		return
	}
	if err := launcher.OpenURL(ctx, u); err != nil {
		logger.Warn("failed to open payment link", "url", u, "error", err)
	}
}
