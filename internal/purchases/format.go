package purchases

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders a monetary amount with grouping separators for display
// badges. Display only; never fed back into calculations.
func FormatAmount(amount decimal.Decimal) string {
	return amountPrinter.Sprintf("%.2f", amount.InexactFloat64())
}

// DisplayAmounts carries pre-formatted amounts for the presentation layer.
type DisplayAmounts struct {
	Original  string `json:"original"`
	Net       string `json:"net"`
	Paid      string `json:"paid"`
	RefundDue string `json:"refund_due"`
}
