package event

import (
	"context"
	"log/slog"

	"github.com/floradistro/pos-checkout/internal/domain"
	pkgkafka "github.com/floradistro/pos-checkout/pkg/kafka"
)

// Kafka topics for checkout telemetry events.
var (
	TopicStageChanged      = pkgkafka.Topic("checkout", "stage_changed")
	TopicCheckoutCompleted = pkgkafka.Topic("checkout", "completed")
	TopicCheckoutFailed    = pkgkafka.Topic("checkout", "failed")
)

// Aggregate type constant.
const AggregateTypeCheckout = "checkout"

// Source identifier for events originating from this service.
const SourceCheckoutService = "pos-checkout"

// StageChangedData is the payload for a checkout.stage_changed event.
type StageChangedData struct {
	RegisterID string `json:"register_id"`
	From       string `json:"from"`
	To         string `json:"to"`
}

// CheckoutCompletedData is the payload for a checkout.completed event.
type CheckoutCompletedData struct {
	RegisterID      string `json:"register_id"`
	OrderNumber     string `json:"order_number"`
	TransactionRef  string `json:"transaction_ref"`
	Total           int64  `json:"total"`
	LoyaltyEarned   int64  `json:"loyalty_points_earned"`
	LoyaltyRedeemed int64  `json:"loyalty_points_redeemed"`
}

// CheckoutFailedData is the payload for a checkout.failed event.
type CheckoutFailedData struct {
	RegisterID string `json:"register_id"`
	Kind       string `json:"kind"`
	Reason     string `json:"reason"`
	Retryable  bool   `json:"retryable"`
}

// Producer publishes checkout telemetry breadcrumbs to Kafka. Publishing
// is best effort: a broker outage must never fail or delay a commit, so
// errors are logged and swallowed. It implements service.Telemetry.
type Producer struct {
	kafka      *pkgkafka.Producer
	registerID string
	logger     *slog.Logger
}

// NewProducer creates a telemetry producer for the given register.
func NewProducer(kafka *pkgkafka.Producer, registerID string, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:      kafka,
		registerID: registerID,
		logger:     logger,
	}
}

// StageChanged publishes a checkout.stage_changed event.
func (p *Producer) StageChanged(ctx context.Context, from, to domain.Stage) {
	data := StageChangedData{
		RegisterID: p.registerID,
		From:       from.String(),
		To:         to.String(),
	}
	p.publish(ctx, TopicStageChanged, data)
}

// CommitCompleted publishes a checkout.completed event.
func (p *Producer) CommitCompleted(ctx context.Context, summary *domain.CompletionSummary) {
	data := CheckoutCompletedData{
		RegisterID:      p.registerID,
		OrderNumber:     summary.OrderNumber,
		TransactionRef:  summary.TransactionRef,
		Total:           summary.Total,
		LoyaltyEarned:   summary.LoyaltyEarned,
		LoyaltyRedeemed: summary.LoyaltyRedeemed,
	}
	p.publish(ctx, TopicCheckoutCompleted, data)
}

// CommitFailed publishes a checkout.failed event.
func (p *Producer) CommitFailed(ctx context.Context, detail *domain.ErrorDetail) {
	data := CheckoutFailedData{
		RegisterID: p.registerID,
		Kind:       string(detail.Kind),
		Reason:     detail.Message,
		Retryable:  detail.Retryable,
	}
	p.publish(ctx, TopicCheckoutFailed, data)
}

func (p *Producer) publish(ctx context.Context, topic string, data any) {
	event, err := pkgkafka.NewEvent(topic, p.registerID, AggregateTypeCheckout, SourceCheckoutService, data)
	if err != nil {
		p.logger.WarnContext(ctx, "build telemetry event",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		p.logger.WarnContext(ctx, "publish telemetry event",
			slog.String("topic", topic),
			slog.String("error", err.Error()),
		)
	}
}
