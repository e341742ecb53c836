package notification

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dream-push-backend/internal/gateway"
	"dream-push-backend/internal/model"
	"dream-push-backend/internal/pusherr"
)

func ref(token string, p model.Platform) model.TokenRef {
	return model.TokenRef{ID: "id-" + token, Token: token, Platform: p}
}

func TestAggregate_NoDeliveries(t *testing.T) {
	o := Aggregate(nil)
	assert.Equal(t, model.StatusFailed, o.Status)
	assert.Equal(t, "No device tokens found", o.Reason)
	assert.Equal(t, pusherr.KindNoTokens, pusherr.KindOf(o.Err))
	assert.False(t, pusherr.KindOf(o.Err).Fatal())
}

func TestAggregate_AtLeastOneSuccess(t *testing.T) {
	platforms := []model.Platform{model.PlatformWeb, model.PlatformAndroid, model.PlatformIOS}

	// Any position of the single success among N deliveries yields sent.
	for n := 1; n <= 5; n++ {
		for ok := 0; ok < n; ok++ {
			t.Run(fmt.Sprintf("n=%d success=%d", n, ok), func(t *testing.T) {
				deliveries := make([]Delivery, n)
				for i := range deliveries {
					deliveries[i] = Delivery{Token: ref(fmt.Sprint(i), platforms[i%3]), Err: errors.New("boom")}
				}
				deliveries[ok].Err = nil

				o := Aggregate(deliveries)
				assert.Equal(t, model.StatusSent, o.Status)
				assert.Empty(t, o.Reason)
				assert.NoError(t, o.Err)
			})
		}
	}
}

func TestAggregate_AllFail(t *testing.T) {
	deliveries := []Delivery{
		{Token: ref("a", model.PlatformWeb), Err: errors.New("gateway returned 400: invalid token")},
		{Token: ref("b", model.PlatformIOS), Err: errors.New("send request failed: timeout")},
		{Token: ref("c", model.PlatformAndroid), Err: errors.New("gateway returned 503 UNAVAILABLE")},
	}

	o := Aggregate(deliveries)
	assert.Equal(t, model.StatusFailed, o.Status)
	assert.Equal(t, pusherr.KindDeviceDelivery, pusherr.KindOf(o.Err))

	fragments := strings.Split(o.Reason, "; ")
	require.Len(t, fragments, 3)
	assert.Equal(t, "[web] gateway returned 400: invalid token", fragments[0])
	assert.Equal(t, "[ios] send request failed: timeout", fragments[1])
	assert.Equal(t, "[android] gateway returned 503 UNAVAILABLE", fragments[2])
}

func TestFatalFailure(t *testing.T) {
	credErr := fmt.Errorf("access token: %w", pusherr.CredentialExchange.New("token endpoint unreachable"))

	testCases := []struct {
		name       string
		deliveries []Delivery
		want       error
	}{
		{"no deliveries", nil, nil},
		{"device errors only", []Delivery{
			{Token: ref("a", model.PlatformIOS), Err: errors.New("gateway returned 503 UNAVAILABLE")},
		}, nil},
		{"credential error everywhere", []Delivery{
			{Token: ref("a", model.PlatformIOS), Err: credErr},
			{Token: ref("b", model.PlatformAndroid), Err: credErr},
		}, credErr},
		{"credential error mixed with device error", []Delivery{
			{Token: ref("a", model.PlatformWeb), Err: errors.New("gateway returned 400: invalid token")},
			{Token: ref("b", model.PlatformAndroid), Err: credErr},
		}, credErr},
		{"one success wins", []Delivery{
			{Token: ref("a", model.PlatformAndroid), Err: credErr},
			{Token: ref("b", model.PlatformWeb)},
		}, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FatalFailure(tc.deliveries))
		})
	}
}

func TestDeactivations(t *testing.T) {
	deliveries := []Delivery{
		{Token: ref("ok", model.PlatformIOS)},
		{Token: ref("gone", model.PlatformAndroid), Err: &gateway.SendError{StatusCode: 404, Status: "NOT_FOUND"}},
		{Token: ref("busy", model.PlatformAndroid), Err: &gateway.SendError{StatusCode: 503, Status: "UNAVAILABLE"}},
		{Token: ref("expired", model.PlatformWeb), Err: fmt.Errorf("wrapped: %w", &gateway.StatusError{StatusCode: 410})},
		{Token: ref("gone", model.PlatformAndroid), Err: &gateway.SendError{StatusCode: 404, Status: "NOT_FOUND"}},
		{Token: ref("net", model.PlatformWeb), Err: errors.New("connection refused")},
	}

	assert.Equal(t, []string{"gone", "expired"}, Deactivations(deliveries))
	assert.Empty(t, Deactivations(nil))
}

func TestTerminal(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	n := model.QueuedNotification{ID: "n-1", UserID: "u"}

	sent := Terminal(now, n, Outcome{Status: model.StatusSent})
	assert.Equal(t, TerminalUpdate{ID: "n-1", Status: model.StatusSent, At: now}, sent)

	failed := Terminal(now, n, NoTokens())
	assert.Equal(t, model.StatusFailed, failed.Status)
	require.NotNil(t, failed.Error)
	assert.Equal(t, "No device tokens found", *failed.Error)
	assert.True(t, failed.Status.Terminal())
}

func TestSummarize(t *testing.T) {
	entries := []PassEntry{
		{Update: TerminalUpdate{Status: model.StatusSent}},
		{Update: TerminalUpdate{Status: model.StatusSent}},
		{Update: TerminalUpdate{Status: model.StatusFailed}},
		{Update: TerminalUpdate{Status: model.StatusSent}, Disposition: Skipped},
		{Disposition: Deferred},
	}

	assert.Equal(t, PassResult{Processed: 5, Succeeded: 2, Failed: 1, Skipped: 1, Deferred: 1}, Summarize(entries))
	assert.Equal(t, PassResult{}, Summarize(nil))
}
