package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"

	"dream-push-backend/config"
)

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(ctx context.Context, payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotificationWithContext(ctx, payload, sub, options)
}

// ParseSubscription recognises a browser PushSubscription serialised as the
// device token.
func ParseSubscription(token string) (*webpush.Subscription, bool) {
	if !strings.HasPrefix(strings.TrimSpace(token), "{") {
		return nil, false
	}
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(token), &sub); err != nil {
		return nil, false
	}
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return nil, false
	}
	return &sub, true
}

// StatusError is a non-2xx answer from a push service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push service returned %d", e.StatusCode)
	}
	return fmt.Sprintf("push service returned %d: %s", e.StatusCode, e.Body)
}

// Permanent reports an expired or unknown subscription.
func (e *StatusError) Permanent() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// VAPIDClient delivers to browser subscriptions directly.
type VAPIDClient struct {
	cfg     config.PushConfig
	options webpush.Options
	sender  NotificationSender
	log     *zap.Logger
}

// NewVAPIDClient creates a client using the configured VAPID keys.
func NewVAPIDClient(cfg config.PushConfig, timeout time.Duration, log *zap.Logger) *VAPIDClient {
	return &VAPIDClient{
		cfg: cfg,
		options: webpush.Options{
			HTTPClient:      &http.Client{Timeout: timeout},
			VAPIDPublicKey:  cfg.PublicKey,
			VAPIDPrivateKey: cfg.PrivateKey,
			Subscriber:      cfg.Subject,
			TTL:             cfg.TTL,
			Urgency:         webpush.UrgencyHigh,
		},
		sender: &WebPushSender{}, // Use the real sender by default
		log:    log.Named("vapid"),
	}
}

// WithSender replaces the sender, for tests.
func (v *VAPIDClient) WithSender(s NotificationSender) *VAPIDClient {
	v.sender = s
	return v
}

// Enabled reports whether VAPID keys are configured.
func (v *VAPIDClient) Enabled() bool {
	return v.cfg.PublicKey != "" && v.cfg.PrivateKey != ""
}

type webPayload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Icon  string            `json:"icon,omitempty"`
	Badge string            `json:"badge,omitempty"`
	Link  string            `json:"link,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

// Send encrypts and posts the notification to the subscription endpoint.
func (v *VAPIDClient) Send(ctx context.Context, sub *webpush.Subscription, c Content, data map[string]string) (err error) {
	defer mon.Task()(&ctx)(&err)

	payload, err := json.Marshal(webPayload{
		Title: c.Title,
		Body:  c.Body,
		Icon:  v.cfg.WebIcon,
		Badge: v.cfg.WebBadge,
		Link:  v.cfg.WebLink,
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("encode web payload: %w", err)
	}

	resp, err := v.sender.Send(ctx, payload, sub, &v.options)
	if err != nil {
		return fmt.Errorf("web push request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	serr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	if serr.Permanent() {
		v.log.Info("subscription expired", zap.String("endpoint", sub.Endpoint), zap.Int("status", resp.StatusCode))
	}
	return serr
}
