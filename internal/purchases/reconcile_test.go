package purchases

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func linesFor(ordered, received, returned int64, price int64) []LineItem {
	return []LineItem{{
		ProductID:     1,
		Qty:           ordered,
		ReceivedQty:   received,
		ReturnedQty:   returned,
		PurchasePrice: decimal.NewFromInt(price),
	}}
}

func TestClassifyReturnStatus(t *testing.T) {
	cases := []struct {
		name     string
		ordered  int64
		received int64
		returned int64
		want     ReturnStatus
	}{
		{"nothing received", 0, 0, 0, ReturnStatusPending},
		{"awaiting first receipt", 10, 0, 0, ReturnStatusPending},
		{"partial receipt", 10, 5, 0, ReturnStatusPartiallyReceived},
		{"fully received", 10, 10, 0, ReturnStatusReceived},
		{"full order returned", 10, 10, 10, ReturnStatusReturned},
		{"partial receipt fully returned reverts to pending", 10, 5, 5, ReturnStatusPending},
		{"full receipt partially returned", 10, 10, 5, ReturnStatusPartiallyReturned},
		{"partial receipt partially returned", 10, 5, 2, ReturnStatusPartiallyReceived},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyReturnStatus(linesFor(tc.ordered, tc.received, tc.returned, 100))
			require.Equal(t, tc.want, got)
		})
	}
}

func TestClassifyReturnStatusAggregatesAcrossLines(t *testing.T) {
	lines := []LineItem{
		{Qty: 4, ReceivedQty: 4, ReturnedQty: 0, PurchasePrice: decimal.NewFromInt(50)},
		{Qty: 6, ReceivedQty: 6, ReturnedQty: 3, PurchasePrice: decimal.NewFromInt(80)},
	}
	require.Equal(t, ReturnStatusPartiallyReturned, ClassifyReturnStatus(lines))
}

func TestCalculateNetPaymentAmount(t *testing.T) {
	p := Purchase{TotalAmount: decimal.NewFromInt(1000), Lines: linesFor(10, 10, 3, 100)}
	net := CalculateNetPaymentAmount(p)
	require.Equal(t, "1000", net.OriginalAmount.String())
	require.Equal(t, "300", net.ReturnAmount.String())
	require.Equal(t, "700", net.NetAmount.String())
}

func TestCalculateNetPaymentAmountFloorsAtZero(t *testing.T) {
	// Returned value nominally exceeding the recorded total is tolerated, not
	// treated as an error.
	p := Purchase{TotalAmount: decimal.NewFromInt(200), Lines: linesFor(10, 10, 10, 100)}
	net := CalculateNetPaymentAmount(p)
	require.Equal(t, "1000", net.ReturnAmount.String())
	require.Equal(t, "0", net.NetAmount.String())
}

func TestClassifyPaymentPartition(t *testing.T) {
	reference := decimal.NewFromInt(500)
	cases := []struct {
		name string
		paid int64
		want PaymentState
	}{
		{"unpaid", 0, PaymentUnpaid},
		{"partial", 200, PaymentPartial},
		{"paid", 500, PaymentPaid},
		{"overpaid", 700, PaymentOverpaid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			paid := decimal.NewFromInt(tc.paid)
			st := classifyPayment(paid, reference)
			require.Equal(t, tc.want, st.Status)
			switch st.Status {
			case PaymentUnpaid, PaymentPartial:
				require.Equal(t, reference.String(), st.RemainingAmount.Add(paid).String())
				require.Equal(t, "0", st.OverpaidAmount.String())
			case PaymentPaid:
				require.Equal(t, "0", st.RemainingAmount.String())
				require.Equal(t, "0", st.OverpaidAmount.String())
			case PaymentOverpaid:
				require.Equal(t, paid.Sub(reference).String(), st.OverpaidAmount.String())
				require.Equal(t, "0", st.RemainingAmount.String())
			}
		})
	}
}

func TestCalculateOriginalPaymentStatusProgress(t *testing.T) {
	p := Purchase{TotalAmount: decimal.NewFromInt(1000), Lines: linesFor(10, 10, 0, 100)}

	st := CalculateOriginalPaymentStatus(p, decimal.NewFromInt(250))
	require.Equal(t, PaymentPartial, st.Status)
	require.EqualValues(t, 25, st.ProgressPercentage)

	// Uncapped above 100 on the overpaid branch.
	st = CalculateOriginalPaymentStatus(p, decimal.NewFromInt(1300))
	require.Equal(t, PaymentOverpaid, st.Status)
	require.EqualValues(t, 130, st.ProgressPercentage)
}

func TestProgressPercentageZeroReference(t *testing.T) {
	require.EqualValues(t, 0, progressPercentage(decimal.Zero, decimal.Zero))
	require.EqualValues(t, 100, progressPercentage(decimal.NewFromInt(50), decimal.Zero))
}

func TestPaymentMadeAfterReturnsChronology(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	returnThenPayment := []Event{
		{Type: EventPartialReturn, CreatedAt: t0},
		{Type: EventPaymentMade, CreatedAt: t0.Add(time.Hour)},
	}
	require.True(t, paymentMadeAfterReturns(returnThenPayment))

	paymentThenReturn := []Event{
		{Type: EventPaymentMade, CreatedAt: t0},
		{Type: EventPartialReturn, CreatedAt: t0.Add(time.Hour)},
	}
	require.False(t, paymentMadeAfterReturns(paymentThenReturn))

	require.False(t, paymentMadeAfterReturns(nil))
	require.False(t, paymentMadeAfterReturns([]Event{{Type: EventPaymentMade, CreatedAt: t0}}))
}

func TestPaymentMadeAfterReturnsUsesFirstPaymentAndLastReturn(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	// Payment at t0, returns at t0+1h and t0+2h: the first payment predates the
	// last return, so the flag stays false even though later events interleave.
	events := []Event{
		{Type: EventFullReturn, CreatedAt: t0.Add(2 * time.Hour)},
		{Type: EventPaymentMade, CreatedAt: t0},
		{Type: EventPartialReturn, CreatedAt: t0.Add(time.Hour)},
		{Type: EventPaymentMade, CreatedAt: t0.Add(3 * time.Hour)},
	}
	require.False(t, paymentMadeAfterReturns(events))
}

func TestCalculateRefundDue(t *testing.T) {
	p := Purchase{TotalAmount: decimal.NewFromInt(1000), Lines: linesFor(10, 10, 3, 100)}

	t.Run("no payment means nothing refundable", func(t *testing.T) {
		due := CalculateRefundDue(p, decimal.Zero, nil, nil)
		require.True(t, due.HasReturns)
		require.Equal(t, "0", due.RefundDue.String())
	})

	t.Run("bounded by amount paid", func(t *testing.T) {
		due := CalculateRefundDue(p, decimal.NewFromInt(150), nil, nil)
		require.Equal(t, "150", due.RefundDue.String())
	})

	t.Run("bounded by return amount", func(t *testing.T) {
		due := CalculateRefundDue(p, decimal.NewFromInt(1000), nil, nil)
		require.Equal(t, "300", due.RefundDue.String())
	})

	t.Run("already refunded reduces due", func(t *testing.T) {
		returns := []Return{{TotalAmount: decimal.NewFromInt(300), RefundStatus: RefundCompleted, RefundAmount: decimal.NewFromInt(120)}}
		due := CalculateRefundDue(p, decimal.NewFromInt(1000), returns, nil)
		require.Equal(t, "180", due.RefundDue.String())
		require.Equal(t, "120", due.RefundedAmount.String())
	})

	t.Run("over-refunded clamps to zero", func(t *testing.T) {
		returns := []Return{{TotalAmount: decimal.NewFromInt(300), RefundStatus: RefundCompleted, RefundAmount: decimal.NewFromInt(400)}}
		due := CalculateRefundDue(p, decimal.NewFromInt(1000), returns, nil)
		require.Equal(t, "0", due.RefundDue.String())
	})

	t.Run("pending refunds tracked separately", func(t *testing.T) {
		returns := []Return{
			{TotalAmount: decimal.NewFromInt(200), RefundStatus: RefundPending},
			{TotalAmount: decimal.NewFromInt(100), RefundStatus: RefundProcessing},
		}
		due := CalculateRefundDue(p, decimal.NewFromInt(1000), returns, nil)
		require.Equal(t, "300", due.PendingRefundAmount.String())
		require.Equal(t, "300", due.RefundDue.String())
	})

	t.Run("payment after returns owes nothing", func(t *testing.T) {
		t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
		events := []Event{
			{Type: EventPartialReturn, CreatedAt: t0},
			{Type: EventPaymentMade, CreatedAt: t0.Add(time.Minute)},
		}
		due := CalculateRefundDue(p, decimal.NewFromInt(700), nil, events)
		require.True(t, due.PaymentMadeAfterReturns)
		require.Equal(t, "0", due.RefundDue.String())
	})
}

func TestCalculateNetPaymentStatusSelectsBase(t *testing.T) {
	p := Purchase{TotalAmount: decimal.NewFromInt(1000), Lines: linesFor(10, 10, 3, 100)}
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	paymentAfter := []Event{
		{Type: EventPartialReturn, CreatedAt: t0},
		{Type: EventPaymentMade, CreatedAt: t0.Add(time.Minute)},
	}
	st := CalculateNetPaymentStatus(p, decimal.NewFromInt(700), paymentAfter)
	require.True(t, st.PaymentMadeAfterReturns)
	require.Equal(t, "700", st.BaseAmount.String())
	require.Equal(t, PaymentPaid, st.Status)
	require.EqualValues(t, 100, st.ProgressPercentage)

	paymentBefore := []Event{
		{Type: EventPaymentMade, CreatedAt: t0},
		{Type: EventPartialReturn, CreatedAt: t0.Add(time.Minute)},
	}
	st = CalculateNetPaymentStatus(p, decimal.NewFromInt(700), paymentBefore)
	require.False(t, st.PaymentMadeAfterReturns)
	require.Equal(t, "1000", st.BaseAmount.String())
	require.Equal(t, PaymentPartial, st.Status)
	require.EqualValues(t, 70, st.ProgressPercentage)
}

func TestReconciliationEndToEnd(t *testing.T) {
	// One line of 10 units at 100, all received, 3 returned, no return records
	// or timeline supplied.
	p := Purchase{TotalAmount: decimal.NewFromInt(1000), Lines: linesFor(10, 10, 3, 100)}
	paid := decimal.NewFromInt(1000)

	require.Equal(t, ReturnStatusPartiallyReturned, ClassifyReturnStatus(p.Lines))

	net := CalculateNetPaymentAmount(p)
	require.Equal(t, "1000", net.OriginalAmount.String())
	require.Equal(t, "300", net.ReturnAmount.String())
	require.Equal(t, "700", net.NetAmount.String())

	netStatus := CalculatePaymentStatus(p, paid)
	require.Equal(t, PaymentOverpaid, netStatus.Status)
	require.Equal(t, "300", netStatus.OverpaidAmount.String())

	origStatus := CalculateOriginalPaymentStatus(p, paid)
	require.Equal(t, PaymentPaid, origStatus.Status)
	require.EqualValues(t, 100, origStatus.ProgressPercentage)
}

func TestCompletePaymentStatusRefundSettled(t *testing.T) {
	p := Purchase{TotalAmount: decimal.NewFromInt(1000), Lines: linesFor(10, 10, 3, 100)}
	paid := decimal.NewFromInt(1000)
	returns := []Return{{
		TotalAmount:  decimal.NewFromInt(300),
		RefundStatus: RefundCompleted,
		RefundAmount: decimal.NewFromInt(300),
	}}

	due := CalculateRefundDue(p, paid, returns, nil)
	require.Equal(t, "0", due.RefundDue.String())
	require.Equal(t, "300", due.RefundedAmount.String())
	require.Equal(t, "0", due.PendingRefundAmount.String())
	require.False(t, due.PaymentMadeAfterReturns)

	complete := CalculateCompletePaymentStatus(p, paid, returns, nil)
	require.Equal(t, "Paid - Refunded", complete.DisplayStatus)
	require.Equal(t, "green", complete.DisplayBadgeColor)
	require.True(t, complete.ShowRefundSection)
}

func TestCompletePaymentStatusTable(t *testing.T) {
	p := Purchase{TotalAmount: decimal.NewFromInt(1000), Lines: linesFor(10, 10, 3, 100)}
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("refund due shows orange badge", func(t *testing.T) {
		complete := CalculateCompletePaymentStatus(p, decimal.NewFromInt(1000), nil, nil)
		require.Equal(t, "Paid - Refund Due", complete.DisplayStatus)
		require.Equal(t, "orange", complete.DisplayBadgeColor)
		require.True(t, complete.ShowRefundSection)
	})

	t.Run("payment after returns uses plain net labels", func(t *testing.T) {
		events := []Event{
			{Type: EventPartialReturn, CreatedAt: t0},
			{Type: EventPaymentMade, CreatedAt: t0.Add(time.Minute)},
		}
		complete := CalculateCompletePaymentStatus(p, decimal.NewFromInt(700), nil, events)
		require.Equal(t, "Paid", complete.DisplayStatus)
		require.Equal(t, "green", complete.DisplayBadgeColor)
		require.False(t, complete.ShowRefundSection)
	})

	t.Run("no returns falls through to base labels", func(t *testing.T) {
		clean := Purchase{TotalAmount: decimal.NewFromInt(1000), Lines: linesFor(10, 10, 0, 100)}
		complete := CalculateCompletePaymentStatus(clean, decimal.NewFromInt(400), nil, nil)
		require.Equal(t, "Partially Paid", complete.DisplayStatus)
		require.Equal(t, "yellow", complete.DisplayBadgeColor)
		require.False(t, complete.ShowRefundSection)
	})

	t.Run("unpaid purchase", func(t *testing.T) {
		clean := Purchase{TotalAmount: decimal.NewFromInt(1000), Lines: linesFor(10, 0, 0, 100)}
		complete := CalculateCompletePaymentStatus(clean, decimal.Zero, nil, nil)
		require.Equal(t, "Unpaid", complete.DisplayStatus)
		require.Equal(t, "red", complete.DisplayBadgeColor)
	})

	t.Run("overpaid with refund settled", func(t *testing.T) {
		returns := []Return{{TotalAmount: decimal.NewFromInt(300), RefundStatus: RefundCompleted, RefundAmount: decimal.NewFromInt(300)}}
		complete := CalculateCompletePaymentStatus(p, decimal.NewFromInt(1400), returns, nil)
		require.Equal(t, "Overpaid - Refunded", complete.DisplayStatus)
		require.Equal(t, "green", complete.DisplayBadgeColor)
	})
}
