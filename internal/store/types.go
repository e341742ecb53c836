package store

import (
	"errors"

	"dream-push-backend/internal/model"
)

// ErrAlreadyClaimed is returned by terminal writes when the row is no longer
// pending under the caller's claim (another pass finished or re-claimed it).
var ErrAlreadyClaimed = errors.New("notification already claimed or finalized")

// Registration is a device token submitted by a client.
type Registration struct {
	UserID   string
	Token    string
	Platform model.Platform
	Info     model.DeviceInfo
}
