// Package pusherr defines the closed set of failure kinds of the delivery pipeline.
package pusherr

import (
	"github.com/zeebo/errs"
)

// Error classes. Wrap errors with the class matching the failure so callers can
// branch with KindOf instead of matching messages.
var (
	Configuration      = errs.Class("configuration")
	CredentialExchange = errs.Class("credential exchange")
	NoTokens           = errs.Class("no tokens")
	DeviceDelivery     = errs.Class("device delivery")
	Storage            = errs.Class("storage")
)

// Kind enumerates the pipeline failure kinds.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindCredentialExchange
	KindNoTokens
	KindDeviceDelivery
	KindStorage
)

var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindConfiguration:      "configuration",
	KindCredentialExchange: "credential_exchange",
	KindNoTokens:           "no_tokens",
	KindDeviceDelivery:     "device_delivery",
	KindStorage:            "storage",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// Fatal reports whether a failure of this kind aborts a whole processing pass.
func (k Kind) Fatal() bool {
	return k == KindConfiguration || k == KindCredentialExchange
}

// KindOf returns the kind of err, or KindUnknown when err carries no class.
// Classes are checked in declaration order.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	switch {
	case Configuration.Has(err):
		return KindConfiguration
	case CredentialExchange.Has(err):
		return KindCredentialExchange
	case NoTokens.Has(err):
		return KindNoTokens
	case DeviceDelivery.Has(err):
		return KindDeviceDelivery
	case Storage.Has(err):
		return KindStorage
	}
	return KindUnknown
}
