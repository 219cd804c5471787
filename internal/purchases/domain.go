package purchases

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Fulfilment statuses derived from line item quantities.
type ReturnStatus string

const (
	ReturnStatusPending           ReturnStatus = "pending"
	ReturnStatusPartiallyReceived ReturnStatus = "partially_received"
	ReturnStatusReceived          ReturnStatus = "received"
	ReturnStatusPartiallyReturned ReturnStatus = "partially_returned"
	ReturnStatusReturned          ReturnStatus = "returned"
)

// Payment states shared by the net and original basis classifiers.
type PaymentState string

const (
	PaymentUnpaid   PaymentState = "unpaid"
	PaymentPartial  PaymentState = "partial"
	PaymentPaid     PaymentState = "paid"
	PaymentOverpaid PaymentState = "overpaid"
)

// Refund lifecycle statuses for a purchase return.
type RefundStatus string

const (
	RefundPending    RefundStatus = "pending"
	RefundProcessing RefundStatus = "processing"
	RefundCompleted  RefundStatus = "completed"
)

// Purchase event types.
type EventType string

const (
	EventPaymentMade   EventType = "payment_made"
	EventPartialReturn EventType = "partial_return"
	EventFullReturn    EventType = "full_return"
)

// LineItem is one product entry on a purchase.
type LineItem struct {
	ID            int64
	PurchaseID    int64
	ProductID     int64
	Qty           int64
	ReceivedQty   int64
	ReturnedQty   int64
	PurchasePrice decimal.Decimal
}

// Purchase domain model. TotalAmount is the recorded order total at order
// time; it is taken as given and never re-derived from the lines.
type Purchase struct {
	ID          int64
	Number      string
	SupplierID  int64
	TotalAmount decimal.Decimal
	AmountPaid  decimal.Decimal
	Lines       []LineItem
	CreatedAt   time.Time
}

// Return records goods sent back to the supplier against a purchase.
type Return struct {
	ID           int64
	PurchaseID   int64
	TotalAmount  decimal.Decimal
	RefundStatus RefundStatus
	RefundAmount decimal.Decimal
	CreatedAt    time.Time
}

// Event is a single entry on a purchase's chronological timeline.
type Event struct {
	ID         int64
	PurchaseID int64
	Type       EventType
	CreatedAt  time.Time
}

// NetPaymentAmount is the payable figure after subtracting returned value.
type NetPaymentAmount struct {
	OriginalAmount decimal.Decimal `json:"original_amount"`
	ReturnAmount   decimal.Decimal `json:"return_amount"`
	NetAmount      decimal.Decimal `json:"net_amount"`
}

// PaymentStatus classifies amountPaid against the net payable amount.
type PaymentStatus struct {
	Status          PaymentState    `json:"status"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	OverpaidAmount  decimal.Decimal `json:"overpaid_amount"`
}

// OriginalPaymentStatus classifies amountPaid against the pre-return order
// total and carries the uncapped progress percentage.
type OriginalPaymentStatus struct {
	PaymentStatus
	ProgressPercentage int64 `json:"progress_percentage"`
}

// RefundDue describes how much refund is still owed to the buyer.
type RefundDue struct {
	RefundDue               decimal.Decimal `json:"refund_due"`
	ReturnAmount            decimal.Decimal `json:"return_amount"`
	HasReturns              bool            `json:"has_returns"`
	RefundedAmount          decimal.Decimal `json:"refunded_amount"`
	PendingRefundAmount     decimal.Decimal `json:"pending_refund_amount"`
	PaymentMadeAfterReturns bool            `json:"payment_made_after_returns"`
}

// NetPaymentStatus is the chronology-aware payment classification. BaseAmount
// is the reference the status was computed against.
type NetPaymentStatus struct {
	Status                  PaymentState    `json:"status"`
	RemainingAmount         decimal.Decimal `json:"remaining_amount"`
	OverpaidAmount          decimal.Decimal `json:"overpaid_amount"`
	ProgressPercentage      int64           `json:"progress_percentage"`
	BaseAmount              decimal.Decimal `json:"base_amount"`
	PaymentMadeAfterReturns bool            `json:"payment_made_after_returns"`
}

// CompletePaymentStatus combines the net status and refund determination with
// display-ready labels.
type CompletePaymentStatus struct {
	NetPaymentStatus
	Refund            RefundDue `json:"refund"`
	DisplayStatus     string    `json:"display_status"`
	DisplayBadgeColor string    `json:"display_badge_color"`
	ShowRefundSection bool      `json:"show_refund_section"`
}

// RefundTransactionDraft is one proposed refund against a recorded payment.
type RefundTransactionDraft struct {
	PaymentID     int64           `json:"payment_id"`
	RefundAmount  decimal.Decimal `json:"refund_amount"`
	PaymentMethod string          `json:"payment_method"`
	PaymentDate   time.Time       `json:"payment_date"`
	Status        RefundStatus    `json:"status"`
}

// RefundBreakdown is the shaped result of the remote breakdown computation.
// Callers must check Success rather than rely on errors.
type RefundBreakdown struct {
	Success      bool                     `json:"success"`
	Transactions []RefundTransactionDraft `json:"transactions"`
	TotalAmount  decimal.Decimal          `json:"total_amount"`
	Errors       []string                 `json:"errors,omitempty"`
}

// RefundEligibility reports whether a return qualifies for refund processing.
type RefundEligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("purchases: not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("purchases: invalid input")
	// ErrInvalidState occurs when an action violates the refund workflow.
	ErrInvalidState = errors.New("purchases: invalid state transition")
)
