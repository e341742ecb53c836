// Package client is the device side of the pipeline: it decides how push can
// be enabled on the host, registers the resulting token with the service and
// routes tapped notifications to in-app destinations.
package client

// Capability is the registration path available on the host.
type Capability string

const (
	CapabilityUnknown     Capability = "unknown"
	CapabilityNative      Capability = "native"
	CapabilityWeb         Capability = "web"
	CapabilityUnsupported Capability = "unsupported"
)

// Runtime describes the host the client runs in.
type Runtime struct {
	// NativeShell is set when running inside the native application shell.
	NativeShell bool
	// HostOS is the operating system reported by the shell, e.g. "iOS 17.2".
	HostOS          string
	UserAgent       string
	Locale          string
	NotificationAPI bool
	ServiceWorker   bool
}

// Detect computes the capability once, at startup.
func Detect(rt Runtime) Capability {
	switch {
	case rt.NativeShell:
		return CapabilityNative
	case rt.NotificationAPI && rt.ServiceWorker:
		return CapabilityWeb
	default:
		return CapabilityUnsupported
	}
}
