package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"

	"github.com/streampulse/accounts/internal/domain/outbox"
	"github.com/streampulse/accounts/internal/obs/retry"
	kafkax "github.com/streampulse/accounts/internal/repository/kafka"
)

type AccountRegisteredPayload struct {
	AccountID string    `json:"account_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	At        time.Time `json:"at"`
}

type PasswordChangedPayload struct {
	AccountID string    `json:"account_id"`
	At        time.Time `json:"at"`
}

// event is the envelope written to the accounts topic. Consumers switch on
// Type before decoding Data.
type event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

var (
	outboxHandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_handler_latency_seconds",
		Help:    "Latency of outbox handlers (publish, etc.)",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	outboxHandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_handler_errors_total",
		Help: "Errors in outbox handlers (after retries).",
	}, []string{"kind"})
)

func instrument(kind string, h outbox.KindHandler, pol retry.Policy) outbox.KindHandler {
	tr := otel.Tracer("outbox.handler")
	if pol.Name == "" {
		pol.Name = "outbox_" + kind
	}
	return func(ctx context.Context, data []byte) error {
		ctx, span := tr.Start(ctx, "outbox.handle")
		defer span.End()

		start := time.Now()
		err := retry.Do(ctx, func() error { return h(ctx, data) }, pol)
		outboxHandlerLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			outboxHandlerErrors.WithLabelValues(kind).Inc()
		}
		return err
	}
}

func publish(ctx context.Context, pub *kafkax.Producer, eventType, accountID string, data []byte) error {
	value, err := json.Marshal(event{Type: eventType, Data: data})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return pub.PublishJSON(ctx, []byte(accountID), value)
}

// MakeGlobalHandler routes each outbox kind to a Kafka publish of the
// corresponding account event.
func MakeGlobalHandler(pub *kafkax.Producer, pol retry.Policy) outbox.GlobalHandler {
	return func(kind outbox.Kind) (outbox.KindHandler, error) {
		switch kind {
		case outbox.KindAccountRegistered:
			base := func(ctx context.Context, data []byte) error {
				var p AccountRegisteredPayload
				if err := json.Unmarshal(data, &p); err != nil {
					return fmt.Errorf("unmarshal account-registered payload: %w", err)
				}
				return publish(ctx, pub, "account.registered", p.AccountID, data)
			}
			return instrument("account_registered", base, pol), nil

		case outbox.KindPasswordChanged:
			base := func(ctx context.Context, data []byte) error {
				var p PasswordChangedPayload
				if err := json.Unmarshal(data, &p); err != nil {
					return fmt.Errorf("unmarshal password-changed payload: %w", err)
				}
				return publish(ctx, pub, "account.password_changed", p.AccountID, data)
			}
			return instrument("password_changed", base, pol), nil

		default:
			return nil, fmt.Errorf("unsupported outbox kind: %d", kind)
		}
	}
}
