package purchases

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/harbor-erp/harbor-erp/internal/shared"
)

// RepositoryPort describes read-side repository operations used by Service.
type RepositoryPort interface {
	GetPurchase(ctx context.Context, id int64) (Purchase, error)
	ListPurchases(ctx context.Context, limit, offset int, filters ListFilters) ([]PurchaseListItem, int, error)
	GetReturn(ctx context.Context, id int64) (Return, error)
	ListReturns(ctx context.Context, purchaseID int64) ([]Return, error)
	ListEvents(ctx context.Context, purchaseID int64) ([]Event, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional refund operations.
type TxRepository interface {
	UpdateReturnRefund(ctx context.Context, id int64, status RefundStatus, refundAmount decimal.Decimal) error
	InsertRefundTransaction(ctx context.Context, rt RefundTransaction) (int64, error)
}

// BreakdownRow is one row of the remote breakdown computation.
type BreakdownRow struct {
	PaymentID     int64
	RefundAmount  decimal.Decimal
	PaymentMethod string
	PaymentDate   time.Time
}

// ProcedurePort invokes the data store procedures backing refund breakdown and
// eligibility. Implementations may substitute any persistence layer that can
// answer these two queries.
type ProcedurePort interface {
	CalculateRefundBreakdown(ctx context.Context, purchaseID int64, amount decimal.Decimal) ([]BreakdownRow, error)
	IsReturnRefundEligible(ctx context.Context, purchaseID int64) (RefundEligibility, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// EnqueuerPort schedules asynchronous refund processing.
type EnqueuerPort interface {
	EnqueueRefundProcess(ctx context.Context, returnID int64) error
}

// MetricsPort counts reconciliation computations.
type MetricsPort interface {
	ObserveReconciliation(source string)
}

// RefundTransaction is a persisted refund against a recorded payment.
type RefundTransaction struct {
	ID        int64
	ReturnID  int64
	PaymentID int64
	Amount    decimal.Decimal
	Method    string
	Status    RefundStatus
	CreatedAt time.Time
}

// ListFilters narrows purchase listings.
type ListFilters struct {
	SupplierID int64
	Search     string
	SortBy     string
	SortDir    string
}

// PurchaseListItem is a row on the purchase listing with aggregated
// quantities for badge rendering.
type PurchaseListItem struct {
	ID           int64           `json:"id"`
	Number       string          `json:"number"`
	SupplierID   int64           `json:"supplier_id"`
	SupplierName string          `json:"supplier_name"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	AmountPaid   decimal.Decimal `json:"amount_paid"`
	OrderedQty   int64           `json:"ordered_qty"`
	ReceivedQty  int64           `json:"received_qty"`
	ReturnedQty  int64           `json:"returned_qty"`
	CreatedAt    time.Time       `json:"created_at"`

	ReturnStatus ReturnStatus `json:"return_status"`
	PaymentState PaymentState `json:"payment_state"`
}

// ReconciliationView is the full derived state for one purchase, served to the
// presentation layer and cached as a snapshot.
type ReconciliationView struct {
	PurchaseID     int64                 `json:"purchase_id"`
	Number         string                `json:"number"`
	ReturnStatus   ReturnStatus          `json:"return_status"`
	Amounts        NetPaymentAmount      `json:"amounts"`
	NetBasis       PaymentStatus         `json:"net_basis"`
	OriginalBasis  OriginalPaymentStatus `json:"original_basis"`
	Complete       CompletePaymentStatus `json:"complete"`
	DisplayAmounts DisplayAmounts        `json:"display_amounts"`
	ComputedAt     time.Time             `json:"computed_at"`
}

// Service orchestrates reconciliation reads and refund processing.
type Service struct {
	repo     RepositoryPort
	procs    ProcedurePort
	cache    *Cache
	audit    AuditPort
	enqueuer EnqueuerPort
	idem     *shared.IdempotencyStore
	metrics  MetricsPort
	group    singleflight.Group
	clock    func() time.Time
}

// NewService constructs the purchases service.
func NewService(repo RepositoryPort, procs ProcedurePort, cache *Cache, audit AuditPort, enqueuer EnqueuerPort, idem *shared.IdempotencyStore) *Service {
	return &Service{
		repo:     repo,
		procs:    procs,
		cache:    cache,
		audit:    audit,
		enqueuer: enqueuer,
		idem:     idem,
		clock:    func() time.Time { return time.Now().UTC() },
	}
}

// SetMetrics attaches an optional metrics sink.
func (s *Service) SetMetrics(m MetricsPort) {
	s.metrics = m
}

// Reconciliation returns the derived purchase state, served from the snapshot
// cache when fresh. Concurrent requests for the same purchase are coalesced.
func (s *Service) Reconciliation(ctx context.Context, purchaseID int64) (ReconciliationView, error) {
	if purchaseID <= 0 {
		return ReconciliationView{}, fmt.Errorf("%w: purchase id %d", ErrValidation, purchaseID)
	}
	key, err := s.cache.BuildKey(ctx, keyReconciliation(purchaseID)...)
	if err != nil {
		return ReconciliationView{}, err
	}

	ch := s.group.DoChan(key, func() (interface{}, error) {
		var view ReconciliationView
		err := s.cache.FetchJSON(ctx, key, &view, func(ctx context.Context) (interface{}, error) {
			s.observe("computed")
			return s.computeReconciliation(ctx, purchaseID)
		})
		return view, err
	})
	select {
	case <-ctx.Done():
		return ReconciliationView{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return ReconciliationView{}, res.Err
		}
		view := res.Val.(ReconciliationView)
		return view, nil
	}
}

func (s *Service) computeReconciliation(ctx context.Context, purchaseID int64) (ReconciliationView, error) {
	purchase, err := s.repo.GetPurchase(ctx, purchaseID)
	if err != nil {
		return ReconciliationView{}, err
	}
	returns, err := s.repo.ListReturns(ctx, purchaseID)
	if err != nil {
		return ReconciliationView{}, err
	}
	events, err := s.repo.ListEvents(ctx, purchaseID)
	if err != nil {
		return ReconciliationView{}, err
	}

	amounts := CalculateNetPaymentAmount(purchase)
	complete := CalculateCompletePaymentStatus(purchase, purchase.AmountPaid, returns, events)
	return ReconciliationView{
		PurchaseID:    purchase.ID,
		Number:        purchase.Number,
		ReturnStatus:  ClassifyReturnStatus(purchase.Lines),
		Amounts:       amounts,
		NetBasis:      CalculatePaymentStatus(purchase, purchase.AmountPaid),
		OriginalBasis: CalculateOriginalPaymentStatus(purchase, purchase.AmountPaid),
		Complete:      complete,
		DisplayAmounts: DisplayAmounts{
			Original:  FormatAmount(amounts.OriginalAmount),
			Net:       FormatAmount(amounts.NetAmount),
			Paid:      FormatAmount(purchase.AmountPaid),
			RefundDue: FormatAmount(complete.Refund.RefundDue),
		},
		ComputedAt: s.clock(),
	}, nil
}

// ListPurchases returns a page of purchases with derived badge states.
func (s *Service) ListPurchases(ctx context.Context, limit, offset int, filters ListFilters) ([]PurchaseListItem, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	items, total, err := s.repo.ListPurchases(ctx, limit, offset, filters)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		aggregate := []LineItem{{
			Qty:         items[i].OrderedQty,
			ReceivedQty: items[i].ReceivedQty,
			ReturnedQty: items[i].ReturnedQty,
		}}
		items[i].ReturnStatus = ClassifyReturnStatus(aggregate)
		items[i].PaymentState = classifyPayment(items[i].AmountPaid, items[i].TotalAmount).Status
	}
	return items, total, nil
}

// RefundBreakdown resolves the return, invokes the remote breakdown
// computation and shapes its rows into refund-transaction drafts. Failures are
// reported through the Errors list, never as a Go error.
func (s *Service) RefundBreakdown(ctx context.Context, returnID int64, amount decimal.Decimal) RefundBreakdown {
	ret, err := s.repo.GetReturn(ctx, returnID)
	if err != nil {
		return RefundBreakdown{Success: false, TotalAmount: decimal.Zero, Errors: []string{err.Error()}}
	}
	if !amount.IsPositive() {
		amount = ret.TotalAmount
	}
	rows, err := s.procs.CalculateRefundBreakdown(ctx, ret.PurchaseID, amount)
	if err != nil {
		return RefundBreakdown{Success: false, TotalAmount: decimal.Zero, Errors: []string{err.Error()}}
	}

	drafts := make([]RefundTransactionDraft, 0, len(rows))
	total := decimal.Zero
	for _, row := range rows {
		drafts = append(drafts, RefundTransactionDraft{
			PaymentID:     row.PaymentID,
			RefundAmount:  row.RefundAmount,
			PaymentMethod: row.PaymentMethod,
			PaymentDate:   row.PaymentDate,
			Status:        RefundPending,
		})
		total = total.Add(row.RefundAmount)
	}
	return RefundBreakdown{Success: true, Transactions: drafts, TotalAmount: total}
}

// RefundEligibility asks the data store whether a return qualifies for refund
// processing. Errors surface as an ineligible result with a reason.
func (s *Service) RefundEligibility(ctx context.Context, returnID int64) RefundEligibility {
	ret, err := s.repo.GetReturn(ctx, returnID)
	if err != nil {
		return RefundEligibility{Eligible: false, Reason: err.Error()}
	}
	eligibility, err := s.procs.IsReturnRefundEligible(ctx, ret.PurchaseID)
	if err != nil {
		return RefundEligibility{Eligible: false, Reason: err.Error()}
	}
	return eligibility
}

// EnqueueRefundProcess schedules asynchronous refund processing for a pending
// return. The idempotency key prevents double-enqueueing the same return.
func (s *Service) EnqueueRefundProcess(ctx context.Context, returnID int64, actorID int64) error {
	if returnID <= 0 {
		return fmt.Errorf("%w: return id %d", ErrValidation, returnID)
	}
	ret, err := s.repo.GetReturn(ctx, returnID)
	if err != nil {
		return err
	}
	if ret.RefundStatus != RefundPending {
		return ErrInvalidState
	}
	key := fmt.Sprintf("REFUND:%s", uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("return:%d", returnID))))
	inserted := false
	if s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, key, "purchases.refund"); err != nil {
			return err
		}
		inserted = true
	}
	if err := s.enqueuer.EnqueueRefundProcess(ctx, returnID); err != nil {
		if inserted {
			_ = s.idem.Delete(ctx, key)
		}
		return err
	}
	s.recordAudit(ctx, actorID, "REFUND_ENQUEUE", returnID, map[string]any{"purchase_id": ret.PurchaseID})
	return nil
}

// ProcessRefund drives a return through the refund lifecycle: verify
// eligibility, confirm the breakdown, persist the refund transactions and mark
// the return completed. Called by the background worker.
func (s *Service) ProcessRefund(ctx context.Context, returnID int64) error {
	ret, err := s.repo.GetReturn(ctx, returnID)
	if err != nil {
		return err
	}
	if ret.RefundStatus == RefundCompleted {
		return nil
	}

	eligibility := s.RefundEligibility(ctx, returnID)
	if !eligibility.Eligible {
		return fmt.Errorf("purchases: return %d not refund eligible: %s", returnID, eligibility.Reason)
	}
	breakdown := s.RefundBreakdown(ctx, returnID, ret.TotalAmount)
	if !breakdown.Success {
		return fmt.Errorf("purchases: refund breakdown for return %d failed: %v", returnID, breakdown.Errors)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateReturnRefund(ctx, returnID, RefundProcessing, decimal.Zero); err != nil {
			return err
		}
		for _, draft := range breakdown.Transactions {
			rt := RefundTransaction{
				ReturnID:  returnID,
				PaymentID: draft.PaymentID,
				Amount:    draft.RefundAmount,
				Method:    draft.PaymentMethod,
				Status:    RefundCompleted,
				CreatedAt: s.clock(),
			}
			if _, err := tx.InsertRefundTransaction(ctx, rt); err != nil {
				return err
			}
		}
		return tx.UpdateReturnRefund(ctx, returnID, RefundCompleted, breakdown.TotalAmount)
	})
	if err != nil {
		return err
	}

	// Snapshots self-expire via TTL; a failed bump only delays freshness.
	_ = s.cache.Bump(ctx)
	s.recordAudit(ctx, 0, "REFUND_PROCESSED", returnID, map[string]any{
		"purchase_id": ret.PurchaseID,
		"total":       breakdown.TotalAmount.String(),
	})
	return nil
}

func (s *Service) observe(source string) {
	if s.metrics != nil {
		s.metrics.ObserveReconciliation(source)
	}
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "purchases", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
