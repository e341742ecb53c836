package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"dream-push-backend/config"
)

var mon = monkit.Package()

const maxErrorBody = 64 << 10

// Client sends messages to the FCM HTTP v1 send endpoint.
type Client struct {
	sendURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	log     *zap.Logger
}

// NewClient creates a client for project. A non-positive ratePerSec disables
// send throttling.
func NewClient(cfg config.FirebaseConfig, project string, ratePerSec float64, log *zap.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	log = log.Named("gateway")

	c := &Client{
		sendURL: fmt.Sprintf("%s/v1/projects/%s/messages:send", strings.TrimRight(cfg.SendEndpoint, "/"), url.PathEscape(project)),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
	if ratePerSec > 0 {
		burst := int(ratePerSec)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(ratePerSec), burst)
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "fcm-send",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

// SendURL returns the per-project send endpoint.
func (c *Client) SendURL() string {
	return c.sendURL
}

type sendRequest struct {
	Message Message `json:"message"`
}

// Send posts one message authorized with bearer. Gateway rejections are
// returned as *SendError.
func (c *Client) Send(ctx context.Context, bearer string, msg Message) (err error) {
	defer mon.Task()(&ctx)(&err)

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("send throttled: %w", err)
		}
	}

	body, err := json.Marshal(sendRequest{Message: msg})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, bearer, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("gateway unavailable: %w", err)
	}
	if err == nil {
		c.log.Debug("message sent", zap.Strings("data_keys", sortedKeys(msg.Data)))
	}
	return err
}

func (c *Client) post(ctx context.Context, bearer string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sendURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	return parseSendError(resp.StatusCode, raw)
}

// isBreakerSuccess counts rejections of a single message as successful calls;
// only transport failures and server-side errors trip the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var se *SendError
	if errors.As(err, &se) {
		return !se.Temporary()
	}
	return false
}

// SendError is a non-2xx answer from the send endpoint.
type SendError struct {
	StatusCode int
	Status     string
	Message    string
	ErrorCodes []string
}

func (e *SendError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "gateway returned %d", e.StatusCode)
	if e.Status != "" {
		b.WriteString(" " + e.Status)
	}
	if e.Message != "" {
		b.WriteString(": " + e.Message)
	}
	if len(e.ErrorCodes) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(e.ErrorCodes, ", "))
	}
	return b.String()
}

// Temporary reports whether a retry on a later pass may succeed.
func (e *SendError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Permanent reports whether the gateway considers the token itself invalid.
func (e *SendError) Permanent() bool {
	codes := append([]string{e.Status}, e.ErrorCodes...)
	invalidArgument := e.Status == "" && e.StatusCode == http.StatusBadRequest
	for _, code := range codes {
		switch code {
		case "UNREGISTERED", "NOT_FOUND":
			return true
		case "INVALID_ARGUMENT":
			invalidArgument = true
		}
	}
	if !invalidArgument {
		return false
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "registration token") || strings.Contains(msg, "invalid token")
}

type errorEnvelope struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

func parseSendError(status int, raw []byte) *SendError {
	se := &SendError{StatusCode: status}
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || (env.Error.Status == "" && env.Error.Message == "") {
		se.Message = strings.TrimSpace(string(raw))
		if len(se.Message) > 256 {
			se.Message = se.Message[:256] + "..."
		}
		return se
	}
	se.Status = env.Error.Status
	se.Message = env.Error.Message
	for _, d := range env.Error.Details {
		if d.ErrorCode != "" {
			se.ErrorCodes = append(se.ErrorCodes, d.ErrorCode)
		}
	}
	return se
}

type permanent interface {
	Permanent() bool
}

// IsPermanent reports whether err means the device token should be
// deactivated.
func IsPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p) && p.Permanent()
}
