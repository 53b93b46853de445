package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/toolhub/digest-engine/internal/domain"
	"github.com/toolhub/digest-engine/internal/mailer"
	"github.com/toolhub/digest-engine/internal/observability"
	"github.com/toolhub/digest-engine/internal/ratelimit"
	"go.uber.org/zap"
)

// DispatchResult summarizes one sequential dispatch pass.
type DispatchResult struct {
	Attempted int
	Succeeded int
	Failed    int
}

// Dispatcher delivers one digest to a resolved recipient list. The loop
// is strictly sequential and waits on the rate gate after every attempt,
// success or failure, so the outbound rate never exceeds the configured
// ceiling regardless of provider errors.
//
// A send failure is isolated to its recipient: it is logged and counted,
// the loop moves on, and no in-run retry happens.
type Dispatcher struct {
	mailer      mailer.Mailer
	renderer    mailer.Renderer
	limiter     ratelimit.Limiter
	resolver    *Resolver
	metrics     *observability.Metrics
	logger      *zap.Logger
	baseURL     string
	frontendURL string
	nowFn       func() time.Time
}

func NewDispatcher(
	sender mailer.Mailer,
	renderer mailer.Renderer,
	limiter ratelimit.Limiter,
	resolver *Resolver,
	metrics *observability.Metrics,
	baseURL string,
	frontendURL string,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if sender == nil {
		return nil, fmt.Errorf("mailer is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if strings.TrimSpace(frontendURL) == "" {
		frontendURL = baseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		mailer:      sender,
		renderer:    renderer,
		limiter:     limiter,
		resolver:    resolver,
		metrics:     metrics,
		logger:      logger,
		baseURL:     strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		frontendURL: strings.TrimRight(strings.TrimSpace(frontendURL), "/"),
		nowFn:       time.Now,
	}, nil
}

// Dispatch renders and sends the digest to every recipient in turn.
// Context cancellation aborts the remaining sends and returns the error
// alongside the counts accumulated so far.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	kind domain.DigestKind,
	items []domain.ItemSummary,
	recipients []domain.Recipient,
) (DispatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := DispatchResult{}
	if len(recipients) == 0 {
		return result, nil
	}
	if len(items) == 0 {
		return result, fmt.Errorf("%w: cannot dispatch digest without items", domain.ErrValidation)
	}

	sentSubscriberIDs := make([]string, 0, len(recipients))

	for i := range recipients {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		recipient := recipients[i]
		result.Attempted++

		subject, html, err := d.renderer.Render(kind, items, d.unsubscribeURL(recipient))
		if err != nil {
			result.Failed++
			d.metrics.IncEmailFailed(kind.String())
			d.logger.Error("failed to render digest",
				zap.String("kind", kind.String()),
				zap.String("recipient", recipient.Email),
				zap.Error(err),
			)
			if waitErr := d.limiter.Wait(ctx, kind.String()); waitErr != nil {
				return result, waitErr
			}
			continue
		}

		start := d.nowFn()
		sendResult, err := d.mailer.Send(ctx, mailer.Message{
			To:      recipient.Email,
			Subject: subject,
			HTML:    html,
		})
		d.metrics.ObserveEmailSendDuration(kind.String(), d.nowFn().Sub(start))

		if err != nil {
			result.Failed++
			d.metrics.IncEmailFailed(kind.String())
			d.logger.Error("failed to send digest email",
				zap.String("kind", kind.String()),
				zap.String("recipient", recipient.Email),
				zap.Bool("transient", mailer.IsTransient(err)),
				zap.Error(err),
			)
		} else {
			result.Succeeded++
			d.metrics.IncEmailSent(kind.String())
			if recipient.SubscriberID != nil {
				sentSubscriberIDs = append(sentSubscriberIDs, *recipient.SubscriberID)
			}

			messageID := ""
			if sendResult != nil {
				messageID = sendResult.MessageID
			}
			d.logger.Debug("digest email sent",
				zap.String("kind", kind.String()),
				zap.String("recipient", recipient.Email),
				zap.String("messageId", messageID),
			)
		}

		if waitErr := d.limiter.Wait(ctx, kind.String()); waitErr != nil {
			d.markSent(ctx, sentSubscriberIDs)
			return result, waitErr
		}
	}

	d.markSent(ctx, sentSubscriberIDs)

	d.logger.Info("digest dispatch finished",
		zap.String("kind", kind.String()),
		zap.Int("attempted", result.Attempted),
		zap.Int("succeeded", result.Succeeded),
		zap.Int("failed", result.Failed),
	)

	return result, nil
}

func (d *Dispatcher) markSent(ctx context.Context, subscriberIDs []string) {
	if len(subscriberIDs) == 0 {
		return
	}

	if err := d.resolver.MarkSent(ctx, subscriberIDs, d.nowFn().UTC()); err != nil {
		// Bookkeeping only; the sends already happened.
		d.logger.Error("failed to update subscriber last_sent_at",
			zap.Int("subscribers", len(subscriberIDs)),
			zap.Error(err),
		)
	}
}

// unsubscribeURL points subscribers at the tokenized one-click endpoint
// and account-only recipients at their notification settings page.
func (d *Dispatcher) unsubscribeURL(recipient domain.Recipient) string {
	if recipient.UnsubscribeToken != nil && strings.TrimSpace(*recipient.UnsubscribeToken) != "" {
		return fmt.Sprintf("%s/api/newsletter/unsubscribe/%s", d.baseURL, strings.TrimSpace(*recipient.UnsubscribeToken))
	}
	return fmt.Sprintf("%s/account/settings", d.frontendURL)
}
