package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/pantrylink/pantrylink-backend/api/responses"
	pkgerrors "github.com/pantrylink/pantrylink-backend/pkg/errors"
	"github.com/pantrylink/pantrylink-backend/pkg/logger"
)

// maxWebhookBody caps what we are willing to read from Stripe. Real
// events are a few KB; anything larger is not ours.
const maxWebhookBody = 1 << 20

type eventHandler interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type signingClient interface {
	SigningSecret() string
}

type idempotencyGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// StripeWebhook verifies and dispatches Stripe events. Signature
// verification happens before anything else touches the payload, and
// the redis guard keeps retried deliveries from applying twice.
func StripeWebhook(svc eventHandler, client signingClient, guard idempotencyGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unable to read webhook payload"))
			return
		}

		signature := r.Header.Get("Stripe-Signature")
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing webhook signature"))
			return
		}

		event, err := webhook.ConstructEvent(payload, signature, client.SigningSecret())
		if err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "stripe.webhook.bad_signature")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		seen, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook idempotency check failed"))
			return
		}
		if seen {
			logg.Info(logg.WithFields(ctx, map[string]any{"event_id": event.ID, "event_type": string(event.Type)}), "stripe.webhook.duplicate")
			responses.WriteSuccess(w, map[string]string{"status": "already_processed"})
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			// Unmark so Stripe's retry gets a clean attempt.
			if delErr := guard.Delete(ctx, event.ID); delErr != nil {
				logg.Error(logg.WithField(ctx, "event_id", event.ID), "stripe.webhook.unmark_failed", delErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "processed"})
	}
}
