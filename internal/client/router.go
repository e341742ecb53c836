package client

import (
	"net/url"
)

// DefaultDestination is where unrecognised notifications lead.
const DefaultDestination = "/notifications"

// Navigator moves the app to an in-app path.
type Navigator interface {
	NavigateTo(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

// NavigateTo implements Navigator.
func (f NavigatorFunc) NavigateTo(path string) { f(path) }

// Resolve maps a tapped notification's data payload to a destination. Missing
// identifiers degrade to the least specific destination for the type.
func Resolve(data map[string]string) string {
	switch data["type"] {
	case "message":
		if actor := actorID(data); actor != "" {
			return "/messages?user=" + url.QueryEscape(actor)
		}
		return "/messages"
	case "like", "comment":
		if dream := data["dream_id"]; dream != "" {
			return "/social?dream=" + url.QueryEscape(dream)
		}
		return "/social"
	case "follow":
		if actor := actorID(data); actor != "" {
			return "/profile/" + url.PathEscape(actor)
		}
		return "/social"
	case "follow_request":
		if actor := actorID(data); actor != "" {
			return "/profile/" + url.PathEscape(actor)
		}
		return DefaultDestination
	case "dream_completed":
		if dream := data["dream_id"]; dream != "" {
			return "/journal?dream=" + url.QueryEscape(dream)
		}
		return "/journal"
	case "trial_expired":
		return "/subscription"
	}
	return DefaultDestination
}

func actorID(data map[string]string) string {
	for _, key := range []string{"actor_id", "sender_id", "user_id"} {
		if v := data[key]; v != "" {
			return v
		}
	}
	return ""
}

// Route resolves data and navigates there exactly once.
func Route(data map[string]string, nav Navigator) {
	if nav == nil {
		return
	}
	nav.NavigateTo(Resolve(data))
}
