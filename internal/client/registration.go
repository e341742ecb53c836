package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"dream-push-backend/internal/model"
	"dream-push-backend/internal/parse"
)

// Permission is the user's answer to a notification permission prompt.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// NativePush is the native shell's push primitive.
type NativePush interface {
	RequestPermission(ctx context.Context) (Permission, error)
	// Register registers with the platform push service and blocks until the
	// provider-assigned token arrives.
	Register(ctx context.Context) (string, error)
}

// WebPush is the browser's push primitive.
type WebPush interface {
	RegisterWorker(ctx context.Context, script string) error
	RequestPermission(ctx context.Context) (Permission, error)
	// Token acquires a messaging token, or a serialised PushSubscription.
	Token(ctx context.Context) (string, error)
}

// Registration is a device token submitted to the registry.
type Registration struct {
	UserID     string           `json:"user_id"`
	Token      string           `json:"token"`
	Platform   model.Platform   `json:"platform"`
	DeviceInfo model.DeviceInfo `json:"device_info"`
}

// Registry is the service side of registration.
type Registry interface {
	Upsert(ctx context.Context, reg Registration) error
	Deactivate(ctx context.Context, userID, token string) error
}

// State is where a session's registration stands.
type State string

const (
	StateIdle        State = "idle"
	StateRegistered  State = "registered"
	StateDenied      State = "denied"
	StateUnsupported State = "unsupported"
	StateFailed      State = "failed"
)

// DefaultWorkerScript is the background worker registered on the web path.
const DefaultWorkerScript = "/firebase-messaging-sw.js"

// Registrar runs the registration path selected by the host capability.
type Registrar struct {
	capability   Capability
	runtime      Runtime
	native       NativePush
	web          WebPush
	registry     Registry
	workerScript string
	now          func() time.Time
	log          *zap.Logger

	mu     sync.Mutex
	state  State
	userID string
	token  string
}

// NewRegistrar creates a registrar. native or web may be nil when the
// capability does not use them.
func NewRegistrar(capability Capability, rt Runtime, native NativePush, web WebPush, registry Registry, log *zap.Logger) *Registrar {
	return &Registrar{
		capability:   capability,
		runtime:      rt,
		native:       native,
		web:          web,
		registry:     registry,
		workerScript: DefaultWorkerScript,
		now:          time.Now,
		log:          log.Named("registrar"),
		state:        StateIdle,
	}
}

// Register acquires a device token for userID and submits it. Permission
// denial and unsupported hosts end in an inert state without error.
func (r *Registrar) Register(ctx context.Context, userID string) error {
	var (
		reg Registration
		ok  bool
		err error
	)
	switch r.capability {
	case CapabilityNative:
		reg, ok, err = r.registerNative(ctx)
	case CapabilityWeb:
		reg, ok, err = r.registerWeb(ctx)
	default:
		r.setState(StateUnsupported)
		r.log.Debug("push is not supported on this host")
		return nil
	}
	if err != nil {
		r.setState(StateFailed)
		r.log.Warn("push registration failed", zap.String("capability", string(r.capability)), zap.Error(err))
		return err
	}
	if !ok {
		r.setState(StateDenied)
		r.log.Info("notification permission not granted")
		return nil
	}

	reg.UserID = userID
	reg.DeviceInfo = model.DeviceInfo{
		UserAgent:    r.runtime.UserAgent,
		Locale:       r.runtime.Locale,
		Platform:     r.platformString(),
		RegisteredAt: r.now().UTC(),
	}
	if err := r.registry.Upsert(ctx, reg); err != nil {
		r.setState(StateFailed)
		r.log.Warn("failed to store device token", zap.Error(err))
		return fmt.Errorf("store device token: %w", err)
	}

	r.mu.Lock()
	r.state = StateRegistered
	r.userID = userID
	r.token = reg.Token
	r.mu.Unlock()

	r.log.Info("device registered for push", zap.String("platform", string(reg.Platform)))
	return nil
}

func (r *Registrar) registerNative(ctx context.Context) (Registration, bool, error) {
	if r.native == nil {
		return Registration{}, false, errors.New("native push primitive is not available")
	}
	perm, err := r.native.RequestPermission(ctx)
	if err != nil {
		return Registration{}, false, fmt.Errorf("request native permission: %w", err)
	}
	if perm != PermissionGranted {
		return Registration{}, false, nil
	}
	token, err := r.native.Register(ctx)
	if err != nil {
		return Registration{}, false, fmt.Errorf("register with native push: %w", err)
	}
	if token == "" {
		return Registration{}, false, errors.New("native push returned an empty token")
	}
	platform, err := parse.Platform(r.runtime.HostOS)
	if err != nil {
		return Registration{}, false, fmt.Errorf("derive platform: %w", err)
	}
	return Registration{Token: token, Platform: platform}, true, nil
}

func (r *Registrar) registerWeb(ctx context.Context) (Registration, bool, error) {
	if r.web == nil {
		return Registration{}, false, errors.New("web push primitive is not available")
	}
	if err := r.web.RegisterWorker(ctx, r.workerScript); err != nil {
		return Registration{}, false, fmt.Errorf("register worker: %w", err)
	}
	perm, err := r.web.RequestPermission(ctx)
	if err != nil {
		return Registration{}, false, fmt.Errorf("request browser permission: %w", err)
	}
	if perm != PermissionGranted {
		return Registration{}, false, nil
	}
	token, err := r.web.Token(ctx)
	if err != nil {
		return Registration{}, false, fmt.Errorf("acquire messaging token: %w", err)
	}
	if token == "" {
		return Registration{}, false, errors.New("web push returned an empty token")
	}
	return Registration{Token: token, Platform: model.PlatformWeb}, true, nil
}

func (r *Registrar) platformString() string {
	if r.capability == CapabilityNative {
		return r.runtime.HostOS
	}
	return string(model.PlatformWeb)
}

// Start runs Register in the background. Failures are logged; the returned
// channel is closed once registration settles.
func (r *Registrar) Start(ctx context.Context, userID string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := r.Register(ctx, userID); err != nil {
			r.log.Error("background push registration failed", zap.Error(err))
		}
	}()
	return done
}

// Unregister deactivates the token registered by this session, on sign-out.
func (r *Registrar) Unregister(ctx context.Context) error {
	r.mu.Lock()
	userID, token := r.userID, r.token
	r.mu.Unlock()

	if token == "" {
		return nil
	}
	if err := r.registry.Deactivate(ctx, userID, token); err != nil {
		r.log.Warn("failed to deactivate device token", zap.Error(err))
		return fmt.Errorf("deactivate device token: %w", err)
	}

	r.mu.Lock()
	r.state = StateIdle
	r.userID = ""
	r.token = ""
	r.mu.Unlock()
	return nil
}

// State returns the current registration state.
func (r *Registrar) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Token returns the token registered by this session, if any.
func (r *Registrar) Token() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

func (r *Registrar) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}
