// Package gateway shapes per-platform push payloads and delivers them through
// the FCM HTTP v1 API or, for browser subscriptions, through VAPID web push.
package gateway

import (
	"encoding/json"
	"fmt"
	"sort"

	"dream-push-backend/config"
	"dream-push-backend/internal/model"
)

// Content is the platform-independent part of a push.
type Content struct {
	Title string
	Body  string
	Data  map[string]any
}

// Message is the FCM v1 message envelope. Only the block of the target
// platform is populated.
type Message struct {
	Token        string            `json:"token"`
	Notification *Notification     `json:"notification,omitempty"`
	Data         map[string]string `json:"data,omitempty"`
	Android      *AndroidConfig    `json:"android,omitempty"`
	APNS         *APNSConfig       `json:"apns,omitempty"`
	Webpush      *WebpushConfig    `json:"webpush,omitempty"`
}

// Notification is the cross-platform title and body shown by the device.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// AndroidConfig carries Android delivery priority and display hints.
type AndroidConfig struct {
	Priority     string              `json:"priority"`
	Notification AndroidNotification `json:"notification"`
}

// AndroidNotification selects the sound, channel and branding of an Android banner.
type AndroidNotification struct {
	Sound     string `json:"sound"`
	ChannelID string `json:"channel_id"`
	Icon      string `json:"icon,omitempty"`
	Color     string `json:"color,omitempty"`
}

// APNSConfig wraps the raw APNs payload forwarded to iOS devices.
type APNSConfig struct {
	Payload APNSPayload `json:"payload"`
}

// APNSPayload is the APNs JSON body.
type APNSPayload struct {
	Aps Aps `json:"aps"`
}

// Aps is the reserved "aps" dictionary of an APNs payload.
type Aps struct {
	Alert ApsAlert `json:"alert"`
	Sound string   `json:"sound"`
	Badge int      `json:"badge"`
}

// ApsAlert is the alert text of an APNs push.
type ApsAlert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// WebpushConfig carries the browser notification and its click-through link.
type WebpushConfig struct {
	Notification WebNotification `json:"notification"`
	FCMOptions   WebFCMOptions   `json:"fcm_options"`
}

// WebNotification mirrors the options of the browser Notification API.
type WebNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	Badge string `json:"badge,omitempty"`
}

// WebFCMOptions holds the link opened when a web notification is clicked.
type WebFCMOptions struct {
	Link string `json:"link"`
}

// Builder turns Content into platform-shaped messages using the configured
// payload hints.
type Builder struct {
	cfg config.PushConfig
}

// NewBuilder creates a Builder.
func NewBuilder(cfg config.PushConfig) *Builder {
	return &Builder{cfg: cfg}
}

// Build shapes c for one device token.
func (b *Builder) Build(token string, platform model.Platform, c Content) Message {
	msg := Message{
		Token:        token,
		Notification: &Notification{Title: c.Title, Body: c.Body},
		Data:         b.Data(c.Data),
	}

	switch platform {
	case model.PlatformAndroid:
		msg.Android = &AndroidConfig{
			Priority: "high",
			Notification: AndroidNotification{
				Sound:     "default",
				ChannelID: b.cfg.AndroidChannelID,
				Icon:      b.cfg.AndroidIcon,
				Color:     b.cfg.AndroidColor,
			},
		}
	case model.PlatformIOS:
		msg.APNS = &APNSConfig{Payload: APNSPayload{Aps: Aps{
			Alert: ApsAlert{Title: c.Title, Body: c.Body},
			Sound: "default",
			Badge: b.cfg.IOSBadge,
		}}}
	case model.PlatformWeb:
		msg.Webpush = &WebpushConfig{
			Notification: WebNotification{
				Title: c.Title,
				Body:  c.Body,
				Icon:  b.cfg.WebIcon,
				Badge: b.cfg.WebBadge,
			},
			FCMOptions: WebFCMOptions{Link: b.cfg.WebLink},
		}
	}
	return msg
}

// Data flattens the business payload to the string map the gateway accepts
// and adds the click action marker.
func (b *Builder) Data(data map[string]any) map[string]string {
	out := make(map[string]string, len(data)+1)
	for k, v := range data {
		if v == nil {
			continue
		}
		out[k] = stringify(v)
	}
	out["click_action"] = b.cfg.ClickAction
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

// sortedKeys is used for stable log output.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
