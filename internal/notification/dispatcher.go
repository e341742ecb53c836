package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"dream-push-backend/internal/credential"
	"dream-push-backend/internal/gateway"
	"dream-push-backend/internal/model"
	"dream-push-backend/internal/store"
)

var mon = monkit.Package()

// errVAPIDDisabled is returned for browser subscriptions when no VAPID keys
// are configured.
var errVAPIDDisabled = errors.New("web push subscription requires VAPID keys")

// Gateway sends one FCM message.
type Gateway interface {
	Send(ctx context.Context, bearer string, msg gateway.Message) error
}

// WebPusher sends to a browser subscription.
type WebPusher interface {
	Enabled() bool
	Send(ctx context.Context, sub *webpush.Subscription, c gateway.Content, data map[string]string) error
}

// Dispatcher fans one notification out to every active device of its user.
type Dispatcher struct {
	registry    store.Registry
	gateway     Gateway
	webpush     WebPusher
	builder     *gateway.Builder
	concurrency int
	log         *zap.Logger
}

// NewDispatcher creates a dispatcher. webpush may be nil.
func NewDispatcher(registry store.Registry, gw Gateway, wp WebPusher, builder *gateway.Builder, concurrency int, log *zap.Logger) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{
		registry:    registry,
		gateway:     gw,
		webpush:     wp,
		builder:     builder,
		concurrency: concurrency,
		log:         log.Named("dispatcher"),
	}
}

// Dispatch delivers n and returns its outcome. An error means the outcome
// could not be decided (registry unreadable, or every device blocked by a
// credential failure) and n must stay pending.
func (d *Dispatcher) Dispatch(ctx context.Context, n model.QueuedNotification, bearer credential.Bearer) (_ Outcome, err error) {
	defer mon.Task()(&ctx)(&err)

	refs, err := d.registry.FetchActiveTokens(ctx, n.UserID)
	if err != nil {
		return Outcome{}, err
	}
	if len(refs) == 0 {
		mon.Counter("notifications_without_tokens").Inc(1)
		return NoTokens(), nil
	}

	content := gateway.Content{Title: n.Title, Body: n.Body, Data: n.Data}
	deliveries := d.fanOut(ctx, refs, content, bearer)
	d.reconcile(ctx, deliveries)

	if err := FatalFailure(deliveries); err != nil {
		return Outcome{}, err
	}
	return Aggregate(deliveries), nil
}

func (d *Dispatcher) fanOut(ctx context.Context, refs []model.TokenRef, content gateway.Content, bearer credential.Bearer) []Delivery {
	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := NewWorkerPool(min(d.concurrency, len(refs)), d.log)
	pool.Start(poolCtx)

	results := make([]Delivery, len(refs))
	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		err := pool.Dispatch(ctx, func() {
			defer wg.Done()
			results[i] = d.deliver(ctx, ref, content, bearer)
		})
		if err != nil {
			wg.Done()
			results[i] = Delivery{Token: ref, Err: err}
		}
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) deliver(ctx context.Context, ref model.TokenRef, content gateway.Content, bearer credential.Bearer) Delivery {
	err := d.send(ctx, ref, content, bearer)
	if err != nil {
		mon.Counter("deliveries_failed").Inc(1)
		d.log.Warn("delivery failed",
			zap.String("token_id", ref.ID),
			zap.String("platform", string(ref.Platform)),
			zap.Error(err))
	} else {
		mon.Counter("deliveries_sent").Inc(1)
	}
	return Delivery{Token: ref, Err: err}
}

func (d *Dispatcher) send(ctx context.Context, ref model.TokenRef, content gateway.Content, bearer credential.Bearer) error {
	if ref.Platform == model.PlatformWeb {
		if sub, ok := gateway.ParseSubscription(ref.Token); ok {
			if d.webpush == nil || !d.webpush.Enabled() {
				return errVAPIDDisabled
			}
			return d.webpush.Send(ctx, sub, content, d.builder.Data(content.Data))
		}
	}

	token, err := bearer.Bearer(ctx)
	if err != nil {
		return fmt.Errorf("access token: %w", err)
	}
	return d.gateway.Send(ctx, token, d.builder.Build(ref.Token, ref.Platform, content))
}

// reconcile deactivates permanently rejected tokens. Failures are logged and
// never change the outcome.
func (d *Dispatcher) reconcile(ctx context.Context, deliveries []Delivery) {
	for _, token := range Deactivations(deliveries) {
		if err := d.registry.Deactivate(ctx, token); err != nil {
			d.log.Warn("failed to deactivate device token", zap.Error(err))
			continue
		}
		mon.Counter("tokens_deactivated").Inc(1)
		d.log.Info("deactivated invalid device token")
	}
}
