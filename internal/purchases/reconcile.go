package purchases

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// All calculators below are pure functions of their inputs. They never fail on
// inconsistent quantities or amounts; negative derived values are clamped so a
// display value can always be produced. Upstream data integrity is the
// caller's responsibility.

// ClassifyReturnStatus derives the fulfilment status of a purchase from the
// aggregated line quantities.
//
// A fully returned partial shipment reverts to pending rather than ending in a
// terminal returned state: the order goes back to awaiting receipt, exactly as
// if nothing had ever arrived. This is an intentional business rule, not a
// fallback.
func ClassifyReturnStatus(lines []LineItem) ReturnStatus {
	var ordered, received, returned int64
	for _, line := range lines {
		ordered += line.Qty
		received += line.ReceivedQty
		returned += line.ReturnedQty
	}

	if returned == 0 {
		switch {
		case received == 0:
			return ReturnStatusPending
		case received < ordered:
			return ReturnStatusPartiallyReceived
		default:
			return ReturnStatusReceived
		}
	}

	netReceived := received - returned
	if netReceived <= 0 {
		if received == ordered {
			return ReturnStatusReturned
		}
		return ReturnStatusPending
	}
	if received == ordered {
		return ReturnStatusPartiallyReturned
	}
	return ReturnStatusPartiallyReceived
}

// CalculateNetPaymentAmount computes the payable amount after returns. The
// return value is always derived from the line items (returned qty times unit
// price), never from the return records, whose totals may disagree.
func CalculateNetPaymentAmount(p Purchase) NetPaymentAmount {
	returnAmount := decimal.Zero
	for _, line := range p.Lines {
		returnAmount = returnAmount.Add(line.PurchasePrice.Mul(decimal.NewFromInt(line.ReturnedQty)))
	}
	net := decimal.Max(decimal.Zero, p.TotalAmount.Sub(returnAmount))
	return NetPaymentAmount{
		OriginalAmount: p.TotalAmount,
		ReturnAmount:   returnAmount,
		NetAmount:      net,
	}
}

// CalculatePaymentStatus classifies amountPaid against the net (post-return)
// payable amount.
func CalculatePaymentStatus(p Purchase, amountPaid decimal.Decimal) PaymentStatus {
	net := CalculateNetPaymentAmount(p)
	return classifyPayment(amountPaid, net.NetAmount)
}

// CalculateOriginalPaymentStatus classifies amountPaid against the pre-return
// order total. The progress percentage is uncapped; overpaid purchases report
// values above 100.
func CalculateOriginalPaymentStatus(p Purchase, amountPaid decimal.Decimal) OriginalPaymentStatus {
	return OriginalPaymentStatus{
		PaymentStatus:      classifyPayment(amountPaid, p.TotalAmount),
		ProgressPercentage: progressPercentage(amountPaid, p.TotalAmount),
	}
}

// CalculateRefundDue determines how much refund is still owed to the buyer.
// When the first payment happened after the last return the payment is assumed
// to already reflect the reduced amount, so nothing further is owed.
func CalculateRefundDue(p Purchase, amountPaid decimal.Decimal, returns []Return, events []Event) RefundDue {
	net := CalculateNetPaymentAmount(p)
	result := RefundDue{
		RefundDue:           decimal.Zero,
		ReturnAmount:        net.ReturnAmount,
		HasReturns:          net.ReturnAmount.IsPositive(),
		RefundedAmount:      decimal.Zero,
		PendingRefundAmount: decimal.Zero,
	}

	for _, r := range returns {
		switch r.RefundStatus {
		case RefundCompleted:
			result.RefundedAmount = result.RefundedAmount.Add(r.RefundAmount)
		case RefundPending, RefundProcessing:
			result.PendingRefundAmount = result.PendingRefundAmount.Add(r.TotalAmount)
		}
	}

	if result.HasReturns {
		result.PaymentMadeAfterReturns = paymentMadeAfterReturns(events)
	}

	if !result.HasReturns || !amountPaid.IsPositive() {
		return result
	}
	if result.PaymentMadeAfterReturns {
		return result
	}

	maxRefundable := decimal.Min(net.ReturnAmount, amountPaid)
	result.RefundDue = decimal.Max(decimal.Zero, maxRefundable.Sub(result.RefundedAmount))
	return result
}

// CalculateNetPaymentStatus classifies amountPaid against a reference chosen
// by chronology: the net amount when payment followed the returns, the
// original amount otherwise.
func CalculateNetPaymentStatus(p Purchase, amountPaid decimal.Decimal, events []Event) NetPaymentStatus {
	net := CalculateNetPaymentAmount(p)
	after := net.ReturnAmount.IsPositive() && paymentMadeAfterReturns(events)
	base := net.OriginalAmount
	if after {
		base = net.NetAmount
	}
	status := classifyPayment(amountPaid, base)
	return NetPaymentStatus{
		Status:                  status.Status,
		RemainingAmount:         status.RemainingAmount,
		OverpaidAmount:          status.OverpaidAmount,
		ProgressPercentage:      progressPercentage(amountPaid, base),
		BaseAmount:              base,
		PaymentMadeAfterReturns: after,
	}
}

// CalculateCompletePaymentStatus composes the chronology-aware payment status
// and the refund determination into a display-ready structure.
func CalculateCompletePaymentStatus(p Purchase, amountPaid decimal.Decimal, returns []Return, events []Event) CompletePaymentStatus {
	net := CalculateNetPaymentStatus(p, amountPaid, events)
	refund := CalculateRefundDue(p, amountPaid, returns, events)

	out := CompletePaymentStatus{NetPaymentStatus: net, Refund: refund}
	switch {
	case net.PaymentMadeAfterReturns:
		out.DisplayStatus = statusLabel(net.Status)
		out.DisplayBadgeColor = statusBadge(net.Status)
	case refund.RefundedAmount.IsPositive() && refund.RefundDue.IsZero():
		out.DisplayStatus = refundPrefix(net.Status) + " - Refunded"
		out.DisplayBadgeColor = "green"
	case refund.RefundDue.IsPositive():
		out.DisplayStatus = refundPrefix(net.Status) + " - Refund Due"
		out.DisplayBadgeColor = "orange"
	default:
		out.DisplayStatus = statusLabel(net.Status)
		out.DisplayBadgeColor = statusBadge(net.Status)
	}
	out.ShowRefundSection = (refund.RefundDue.IsPositive() || refund.RefundedAmount.IsPositive()) &&
		!refund.PaymentMadeAfterReturns
	return out
}

// classifyPayment applies the shared four-way state machine. Branch order
// matters: a zero payment is unpaid regardless of the reference.
func classifyPayment(amountPaid, reference decimal.Decimal) PaymentStatus {
	if amountPaid.IsZero() {
		return PaymentStatus{Status: PaymentUnpaid, RemainingAmount: reference, OverpaidAmount: decimal.Zero}
	}
	switch amountPaid.Cmp(reference) {
	case -1:
		return PaymentStatus{Status: PaymentPartial, RemainingAmount: reference.Sub(amountPaid), OverpaidAmount: decimal.Zero}
	case 0:
		return PaymentStatus{Status: PaymentPaid, RemainingAmount: decimal.Zero, OverpaidAmount: decimal.Zero}
	default:
		return PaymentStatus{Status: PaymentOverpaid, RemainingAmount: decimal.Zero, OverpaidAmount: amountPaid.Sub(reference)}
	}
}

// progressPercentage rounds amountPaid/base to a whole percentage, uncapped.
// A zero base cannot be divided; a comped order counts as fully settled once
// any payment exists.
func progressPercentage(amountPaid, base decimal.Decimal) int64 {
	if base.IsZero() {
		if amountPaid.IsPositive() {
			return 100
		}
		return 0
	}
	return amountPaid.Div(base).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// paymentMadeAfterReturns reports whether the first recorded payment happened
// after the last recorded return. Only the first payment and the last return
// are considered; interleaved payment/return sequences are not untangled.
func paymentMadeAfterReturns(events []Event) bool {
	if len(events) == 0 {
		return false
	}
	sorted := append([]Event(nil), events...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	var (
		lastReturn   time.Time
		firstPayment time.Time
		haveReturn   bool
		havePayment  bool
	)
	for _, evt := range sorted {
		switch evt.Type {
		case EventPartialReturn, EventFullReturn:
			lastReturn = evt.CreatedAt
			haveReturn = true
		case EventPaymentMade:
			if !havePayment {
				firstPayment = evt.CreatedAt
				havePayment = true
			}
		}
	}
	return haveReturn && havePayment && firstPayment.After(lastReturn)
}

func statusLabel(state PaymentState) string {
	switch state {
	case PaymentPartial:
		return "Partially Paid"
	case PaymentPaid:
		return "Paid"
	case PaymentOverpaid:
		return "Overpaid"
	default:
		return "Unpaid"
	}
}

func statusBadge(state PaymentState) string {
	switch state {
	case PaymentPartial:
		return "yellow"
	case PaymentPaid:
		return "green"
	case PaymentOverpaid:
		return "purple"
	default:
		return "red"
	}
}

func refundPrefix(state PaymentState) string {
	switch state {
	case PaymentPaid:
		return "Paid"
	case PaymentOverpaid:
		return "Overpaid"
	default:
		return "Partial"
	}
}
