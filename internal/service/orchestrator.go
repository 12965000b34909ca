package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/floradistro/pos-checkout/internal/domain"
	"github.com/floradistro/pos-checkout/internal/remote"
)

const (
	// defaultCommitTimeout bounds the remote commit call. Generous
	// because the remote side performs an atomic multi-table commit
	// including inventory reservation.
	defaultCommitTimeout = 90 * time.Second
)

// CommitSender issues the remote commit call. *remote.Client satisfies
// this.
type CommitSender interface {
	CommitOrder(ctx context.Context, token string, input *remote.CommitOrderInput) (*remote.Result, error)
}

// CredentialProvider supplies a non-expired bearer credential for the
// commit call, refreshing it when needed.
type CredentialProvider interface {
	FreshCredential(ctx context.Context) (string, error)
}

// Telemetry receives structured breadcrumbs at each stage transition
// and a report on terminal outcomes. Implementations must never block
// the commit path.
type Telemetry interface {
	StageChanged(ctx context.Context, from, to domain.Stage)
	CommitCompleted(ctx context.Context, summary *domain.CompletionSummary)
	CommitFailed(ctx context.Context, detail *domain.ErrorDetail)
}

// Orchestrator owns the one mutable checkout session per register and
// drives a commit attempt through the payment state machine. At most
// one attempt is in flight at a time; a second Commit while one is
// active is rejected, never queued.
type Orchestrator struct {
	mu      sync.Mutex
	session *domain.CheckoutSession

	preparer  *Preparer
	creds     CredentialProvider
	sender    CommitSender
	telemetry Telemetry
	logger    *slog.Logger

	timeout   time.Duration
	onSuccess func(*domain.CompletionSummary)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCommitTimeout overrides the remote-call deadline.
func WithCommitTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithSuccessCallback registers a hook invoked after the session
// reaches complete. The callback runs on the committing goroutine.
func WithSuccessCallback(fn func(*domain.CompletionSummary)) Option {
	return func(o *Orchestrator) {
		o.onSuccess = fn
	}
}

// NewOrchestrator creates the checkout orchestrator. The session is
// created once here and lives for the life of the process.
func NewOrchestrator(creds CredentialProvider, sender CommitSender, telemetry Telemetry, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		session:   &domain.CheckoutSession{},
		preparer:  NewPreparer(),
		creds:     creds,
		sender:    sender,
		telemetry: telemetry,
		logger:    logger,
		timeout:   defaultCommitTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CurrentStage returns the session's stage.
func (o *Orchestrator) CurrentStage() domain.Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.Stage
}

// LastError returns the detail of the most recent failure, or nil.
func (o *Orchestrator) LastError() *domain.ErrorDetail {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.LastError
}

// Completion returns the summary of the most recent successful commit,
// or nil.
func (o *Orchestrator) Completion() *domain.CompletionSummary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.Completion
}

// Reset unconditionally returns the session to idle and aborts any
// in-flight remote call.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.session.CancelInFlight()
	setCurrentStage(o.session.Stage, domain.StageIdle)
	o.session.Reset()
}

// Cancel aborts the in-flight remote call, if any. The commit then
// fails through the normal error path with kind Cancelled. Reports
// whether there was a call to abort.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session.CancelInFlight()
}

// Commit turns the cart in req into a durable, paid order exactly once.
// It validates locally, refreshes the session credential, and issues a
// single bounded remote commit call. On any failure the session lands
// in the error stage with a classified ErrorDetail attached.
func (o *Orchestrator) Commit(ctx context.Context, req *domain.CommitRequest) (*domain.CompletionSummary, error) {
	start := time.Now()

	// Guard: single mutex-protected check-and-set. A concurrent caller
	// must observe either idle-ish or in-flight, never a torn state.
	o.mu.Lock()
	if o.session.Stage.IsInFlight() {
		stage := o.session.Stage
		o.mu.Unlock()
		recordCommit("rejected_in_progress", time.Since(start))
		return nil, domain.AlreadyInProgress(stage)
	}
	if o.session.Stage.IsTerminal() {
		// Commit from a terminal stage starts clean: implicit reset
		// inside the same critical section.
		setCurrentStage(o.session.Stage, domain.StageIdle)
		o.session.Reset()
	}
	if err := o.transitionLocked(ctx, domain.StageInitializing); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	o.mu.Unlock()

	// Local validation. No network has been touched on these paths, so
	// fixing the input and retrying is cheap and safe.
	if err := validatePayment(req); err != nil {
		return nil, o.fail(ctx, start, err)
	}

	items, err := o.preparer.Prepare(req.Entries)
	if err != nil {
		return nil, o.fail(ctx, start, err)
	}

	var computedSubtotal int64
	for _, item := range items {
		computedSubtotal += item.LineTotal
	}
	if computedSubtotal != req.Subtotal {
		o.logger.WarnContext(ctx, "subtotal mismatch between cart and prepared lines",
			slog.Int64("request_subtotal", req.Subtotal),
			slog.Int64("computed_subtotal", computedSubtotal),
		)
	}

	if err := o.transition(ctx, domain.StageSending); err != nil {
		return nil, err
	}

	token, err := o.creds.FreshCredential(ctx)
	if err != nil {
		return nil, o.fail(ctx, start, domain.AuthenticationRequired(err))
	}

	if err := o.transition(ctx, domain.StageProcessing); err != nil {
		return nil, err
	}

	// The remote call is the sole suspension point. The deadline is
	// mandatory: an unresolved stage would block every future commit
	// through the guard.
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	o.mu.Lock()
	o.session.SetCancel(cancel)
	o.mu.Unlock()

	result, err := o.sender.CommitOrder(callCtx, token, buildCommitInput(req, items))

	o.mu.Lock()
	o.session.ClearCancel()
	o.mu.Unlock()
	cancel()

	if err != nil {
		return nil, o.fail(ctx, start, err)
	}

	if err := o.transition(ctx, domain.StageApproving); err != nil {
		return nil, err
	}
	if err := o.transition(ctx, domain.StageSuccess); err != nil {
		return nil, err
	}

	summary := buildSummary(req, result)

	o.mu.Lock()
	o.session.Completion = summary
	err = o.transitionLocked(ctx, domain.StageComplete)
	o.mu.Unlock()
	if err != nil {
		return nil, err
	}

	recordCommit("complete", time.Since(start))
	if o.telemetry != nil {
		o.telemetry.CommitCompleted(ctx, summary)
	}
	o.logger.InfoContext(ctx, "checkout committed",
		slog.String("order_number", summary.OrderNumber),
		slog.Int64("total", summary.Total),
		slog.Int64("loyalty_earned", summary.LoyaltyEarned),
		slog.Int64("loyalty_redeemed", summary.LoyaltyRedeemed),
	)

	if o.onSuccess != nil {
		o.onSuccess(summary)
	}

	return summary, nil
}

// transition moves the session to the target stage under the lock.
func (o *Orchestrator) transition(ctx context.Context, to domain.Stage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transitionLocked(ctx, to)
}

// transitionLocked performs a single state-machine step. The caller
// holds o.mu. An invalid transition is a bug in stage sequencing: it is
// logged at error severity and forces a reset, since leaving the stage
// wedged would block every future commit.
func (o *Orchestrator) transitionLocked(ctx context.Context, to domain.Stage) error {
	from := o.session.Stage
	next, err := domain.Transition(from, to)
	if err != nil {
		o.logger.ErrorContext(ctx, "invalid stage transition",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
		setCurrentStage(from, domain.StageIdle)
		o.session.Reset()
		return err
	}
	o.session.Stage = next
	recordStageTransition(from, next)
	if o.telemetry != nil {
		o.telemetry.StageChanged(ctx, from, next)
	}
	return nil
}

// fail classifies err, records it into the session, and transitions to
// the error stage.
func (o *Orchestrator) fail(ctx context.Context, start time.Time, err error) error {
	classified := Classify(err)
	detail := domain.DetailOf(classified)

	o.mu.Lock()
	// The transition to error is legal from every in-flight stage; if
	// the session is somehow elsewhere, transitionLocked resets it and
	// logs at error severity.
	_ = o.transitionLocked(ctx, domain.StageError)
	o.session.LastError = detail
	o.mu.Unlock()

	recordCommit(string(classified.Kind), time.Since(start))
	if o.telemetry != nil {
		o.telemetry.CommitFailed(ctx, detail)
	}
	o.logger.WarnContext(ctx, "checkout failed",
		slog.String("kind", string(classified.Kind)),
		slog.String("error", classified.Error()),
	)

	return classified
}

// validatePayment rejects internally inconsistent payment descriptors
// before any network call.
func validatePayment(req *domain.CommitRequest) error {
	p := req.Payment
	switch p.Method {
	case domain.PaymentCash:
		if p.CardBrand != "" || p.CardLast4 != "" {
			return domain.ValidationError("cash payment must not carry card fields")
		}
		if len(p.Splits) > 0 {
			return domain.ValidationError("cash payment must not carry split tenders")
		}
		if p.CashTendered < req.Total {
			return domain.ValidationError("cash tendered is less than the total")
		}
	case domain.PaymentCard:
		if p.CashTendered != 0 || p.ChangeDue != 0 {
			return domain.ValidationError("card payment must not carry cash fields")
		}
		if len(p.Splits) > 0 {
			return domain.ValidationError("card payment must not carry split tenders")
		}
	case domain.PaymentSplit:
		if len(p.Splits) < 2 {
			return domain.ValidationError("split payment requires at least two tenders")
		}
		var sum int64
		for _, split := range p.Splits {
			if split.Method != domain.PaymentCash && split.Method != domain.PaymentCard {
				return domain.ValidationError("split tender method must be cash or card")
			}
			if split.Amount <= 0 {
				return domain.ValidationError("split tender amounts must be greater than 0")
			}
			sum += split.Amount
		}
		if sum != req.Total {
			return domain.ValidationError("split tender amounts must sum to the total")
		}
	default:
		return domain.ValidationError("unsupported payment method: " + p.Method)
	}
	return nil
}

// buildCommitInput shapes the validated request and prepared lines into
// the wire input for the commit call.
func buildCommitInput(req *domain.CommitRequest, items []domain.LineItem) *remote.CommitOrderInput {
	input := &remote.CommitOrderInput{
		IdempotencyKey: req.Fingerprint(),
		VendorID:       req.VendorID,
		LocationID:     req.LocationID,
		RegisterID:     req.RegisterID,
		SessionID:      req.SessionID,
		Items:          make([]remote.Item, len(items)),
		Subtotal:       req.Subtotal,
		Tax:            req.Tax,
		Total:          req.Total,
		Payment: remote.Payment{
			Method:       req.Payment.Method,
			CashTendered: req.Payment.CashTendered,
			ChangeDue:    req.Payment.ChangeDue,
			CardBrand:    req.Payment.CardBrand,
			CardLast4:    req.Payment.CardLast4,
		},
		CustomerID:   req.CustomerID,
		LoyaltyToUse: req.LoyaltyToUse,
		DiscountID:   req.DiscountID,
	}
	for _, split := range req.Payment.Splits {
		input.Payment.Splits = append(input.Payment.Splits, remote.Split(split))
	}
	for i, item := range items {
		input.Items[i] = remote.Item{
			ProductID:    item.ProductID,
			Name:         item.DisplayName,
			SKU:          item.SKU,
			UnitPrice:    item.UnitPrice,
			CartQuantity: item.CartQty,
			TierLabel:    item.TierLabel,
			DeductionQty: item.DeductionQty,
			LineTotal:    item.LineTotal,
			InventoryRef: item.InventoryRef,
		}
		if item.Conversion != nil {
			input.Items[i].Conversion = &remote.Conversion{
				TemplateID: item.Conversion.TemplateID,
				Name:       item.Conversion.Name,
				Ratio:      item.Conversion.Ratio,
			}
		}
	}
	return input
}

// buildSummary assembles the completion summary. The server's loyalty
// figures always win over anything computed client-side.
func buildSummary(req *domain.CommitRequest, result *remote.Result) *domain.CompletionSummary {
	total := req.Total
	if result.Total != 0 {
		total = result.Total
	}
	return &domain.CompletionSummary{
		OrderNumber:     result.OrderNumber,
		TransactionRef:  result.TransactionRef,
		Subtotal:        req.Subtotal,
		Tax:             req.Tax,
		Total:           total,
		AuthCode:        result.AuthCode,
		CardBrand:       result.CardBrand,
		CardLast4:       result.CardLast4,
		LoyaltyEarned:   result.LoyaltyEarned,
		LoyaltyRedeemed: result.LoyaltyRedeemed,
	}
}
