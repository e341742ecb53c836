package notification

import (
	"fmt"
	"strings"
	"time"

	"dream-push-backend/internal/gateway"
	"dream-push-backend/internal/model"
	"dream-push-backend/internal/pusherr"
)

// NoTokensReason is the error recorded for users without active devices.
const NoTokensReason = "No device tokens found"

// Delivery is the result of sending to one device token.
type Delivery struct {
	Token model.TokenRef
	Err   error
}

// Outcome is the aggregated result of dispatching one notification.
type Outcome struct {
	Status model.NotificationStatus
	// Reason is the text stored on failed rows.
	Reason     string
	Err        error
	Deliveries []Delivery
}

// NoTokens is the outcome for a user with no active devices.
func NoTokens() Outcome {
	return Outcome{
		Status: model.StatusFailed,
		Reason: NoTokensReason,
		Err:    pusherr.NoTokens.New(NoTokensReason),
	}
}

// Aggregate applies the at-least-one-success rule. Every failed delivery
// contributes one "[platform] error" fragment to the reason.
func Aggregate(deliveries []Delivery) Outcome {
	if len(deliveries) == 0 {
		return NoTokens()
	}

	succeeded := 0
	var fragments []string
	for _, d := range deliveries {
		if d.Err == nil {
			succeeded++
			continue
		}
		fragments = append(fragments, fmt.Sprintf("[%s] %s", d.Token.Platform, d.Err.Error()))
	}

	if succeeded > 0 {
		return Outcome{Status: model.StatusSent, Deliveries: deliveries}
	}
	reason := strings.Join(fragments, "; ")
	return Outcome{
		Status:     model.StatusFailed,
		Reason:     reason,
		Err:        pusherr.DeviceDelivery.New("%s", reason),
		Deliveries: deliveries,
	}
}

// FatalFailure returns the first credential or configuration error among
// deliveries when none of them succeeded. Such a failure says nothing about
// the devices, so the notification must not be finalized on it.
func FatalFailure(deliveries []Delivery) error {
	var fatal error
	for _, d := range deliveries {
		if d.Err == nil {
			return nil
		}
		if fatal == nil && pusherr.KindOf(d.Err).Fatal() {
			fatal = d.Err
		}
	}
	return fatal
}

// Deactivations returns the tokens whose delivery failed permanently, each
// once.
func Deactivations(deliveries []Delivery) []string {
	seen := make(map[string]bool)
	var tokens []string
	for _, d := range deliveries {
		if d.Err == nil || !gateway.IsPermanent(d.Err) || seen[d.Token.Token] {
			continue
		}
		seen[d.Token.Token] = true
		tokens = append(tokens, d.Token.Token)
	}
	return tokens
}

// TerminalUpdate is the status write for one notification.
type TerminalUpdate struct {
	ID     string
	Status model.NotificationStatus
	Error  *string
	At     time.Time
}

// Terminal computes the write for n given its outcome.
func Terminal(now time.Time, n model.QueuedNotification, o Outcome) TerminalUpdate {
	upd := TerminalUpdate{ID: n.ID, Status: o.Status, At: now}
	if o.Status == model.StatusFailed {
		reason := o.Reason
		upd.Error = &reason
	}
	return upd
}

// Disposition says what happened to a claimed row during a pass.
type Disposition int

const (
	// Written means the terminal update was stored.
	Written Disposition = iota
	// Skipped means another pass finalized or re-claimed the row first.
	Skipped
	// Deferred means the row stays pending until its lease expires.
	Deferred
)

// PassEntry is one claimed row's contribution to a pass.
type PassEntry struct {
	Update      TerminalUpdate
	Disposition Disposition
}

// PassResult holds the counters of one processing pass.
type PassResult struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Deferred  int `json:"deferred"`
}

// Summarize folds the entries of a pass into its counters.
func Summarize(entries []PassEntry) PassResult {
	var r PassResult
	for _, e := range entries {
		r.Processed++
		switch e.Disposition {
		case Skipped:
			r.Skipped++
		case Deferred:
			r.Deferred++
		default:
			if e.Update.Status == model.StatusSent {
				r.Succeeded++
			} else {
				r.Failed++
			}
		}
	}
	return r
}
