// Package processor drives queue processing passes.
package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spacemonkeygo/monkit/v3"
	"go.uber.org/zap"

	"dream-push-backend/config"
	"dream-push-backend/internal/credential"
	"dream-push-backend/internal/model"
	"dream-push-backend/internal/notification"
	"dream-push-backend/internal/pusherr"
	"dream-push-backend/internal/store"
)

var mon = monkit.Package()

// Dispatcher decides the outcome of one notification.
type Dispatcher interface {
	Dispatch(ctx context.Context, n model.QueuedNotification, bearer credential.Bearer) (notification.Outcome, error)
}

// Service orchestrates processing passes over the notification queue.
type Service struct {
	cfg        config.ProcessorConfig
	queue      store.Queue
	source     credential.Source
	dispatcher Dispatcher
	now        func() time.Time
	log        *zap.Logger
}

// NewService creates and initializes a new processor service.
func NewService(cfg config.ProcessorConfig, queue store.Queue, source credential.Source, dispatcher Dispatcher, log *zap.Logger) *Service {
	return &Service{
		cfg:        cfg,
		queue:      queue,
		source:     source,
		dispatcher: dispatcher,
		now:        time.Now,
		log:        log.Named("processor"),
	}
}

// Run starts the processing passes in a loop.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("processor is disabled, not starting")
		return
	}
	s.log.Info("starting processor", zap.Duration("interval", s.cfg.Interval))

	s.runPass(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("processor shutting down")
			return
		case <-timer.C:
			s.runPass(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Service) runPass(ctx context.Context) {
	res, err := s.ProcessOnce(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.log.Error("processing pass aborted",
			zap.String("kind", pusherr.KindOf(err).String()),
			zap.Error(err))
		return
	}
	if res.Processed > 0 {
		s.log.Info("processing pass finished",
			zap.Int("processed", res.Processed),
			zap.Int("succeeded", res.Succeeded),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped),
			zap.Int("deferred", res.Deferred))
	}
}

// ProcessOnce performs a single pass: mint the pass token, claim a batch of
// pending notifications, dispatch each and write its terminal status.
// Credential and queue read failures abort the pass. A credential or
// configuration failure met while dispatching stops the batch: the rows not
// yet finalized are released for the next pass and the error is returned
// along with the counters so far.
func (s *Service) ProcessOnce(ctx context.Context) (_ notification.PassResult, err error) {
	defer mon.Task()(&ctx)(&err)

	passID := uuid.NewString()
	log := s.log.With(zap.String("pass", passID))

	bearer, err := credential.NewPassToken(ctx, s.source, s.now)
	if err != nil {
		return notification.PassResult{}, fmt.Errorf("mint pass token: %w", err)
	}

	rows, err := s.queue.ClaimPending(ctx, passID, s.now(), s.cfg.ClaimLease, s.cfg.BatchSize)
	if err != nil {
		return notification.PassResult{}, fmt.Errorf("claim pending notifications: %w", err)
	}
	if len(rows) == 0 {
		log.Debug("no pending notifications")
		return notification.PassResult{}, nil
	}
	log.Debug("claimed notifications", zap.Int("count", len(rows)))

	entries := make([]notification.PassEntry, 0, len(rows))
	for i, n := range rows {
		entry, fatal := s.process(ctx, log, passID, n, bearer)
		entries = append(entries, entry)
		if fatal == nil {
			continue
		}
		for range rows[i+1:] {
			entries = append(entries, notification.PassEntry{Disposition: notification.Deferred})
		}
		s.release(ctx, log, passID, rows[i:])
		err = fmt.Errorf("dispatch notification %s: %w", n.ID, fatal)
		break
	}

	res := notification.Summarize(entries)
	mon.Counter("notifications_sent").Inc(int64(res.Succeeded))
	mon.Counter("notifications_failed").Inc(int64(res.Failed))
	return res, err
}

// process dispatches one claimed row and writes its terminal status. The
// returned error is set only when the failure makes the rest of the batch
// pointless.
func (s *Service) process(ctx context.Context, log *zap.Logger, passID string, n model.QueuedNotification, bearer credential.Bearer) (notification.PassEntry, error) {
	log = log.With(zap.String("notification", n.ID))

	if ctx.Err() != nil {
		return notification.PassEntry{Disposition: notification.Deferred}, nil
	}

	// A long batch can outlive the lease taken at claim time. Take it again
	// for this row, or leave the row to the pass that now holds it.
	if err := s.queue.RenewClaim(ctx, n.ID, passID, s.now(), s.cfg.ClaimLease); err != nil {
		if errors.Is(err, store.ErrAlreadyClaimed) {
			log.Info("claim lost before dispatch")
			return notification.PassEntry{Disposition: notification.Skipped}, nil
		}
		log.Error("failed to renew claim", zap.Error(err))
		return notification.PassEntry{Disposition: notification.Deferred}, nil
	}

	outcome, err := s.dispatcher.Dispatch(ctx, n, bearer)
	if err != nil {
		kind := pusherr.KindOf(err)
		if kind.Fatal() {
			return notification.PassEntry{Disposition: notification.Deferred}, err
		}
		log.Warn("dispatch deferred", zap.String("kind", kind.String()), zap.Error(err))
		return notification.PassEntry{Disposition: notification.Deferred}, nil
	}

	upd := notification.Terminal(s.now().UTC(), n, outcome)
	if err := s.write(ctx, passID, upd); err != nil {
		if errors.Is(err, store.ErrAlreadyClaimed) {
			log.Info("notification finalized by another pass")
			return notification.PassEntry{Update: upd, Disposition: notification.Skipped}, nil
		}
		log.Error("failed to write terminal status", zap.Error(err))
		return notification.PassEntry{Update: upd, Disposition: notification.Deferred}, nil
	}

	if outcome.Status == model.StatusFailed {
		log.Info("notification failed",
			zap.String("kind", pusherr.KindOf(outcome.Err).String()),
			zap.String("reason", outcome.Reason))
	}
	return notification.PassEntry{Update: upd}, nil
}

// release hands rows the pass gave up on back to the queue.
func (s *Service) release(ctx context.Context, log *zap.Logger, passID string, rows []model.QueuedNotification) {
	for _, n := range rows {
		if err := s.queue.ReleaseClaim(ctx, n.ID, passID); err != nil && !errors.Is(err, store.ErrAlreadyClaimed) {
			log.Warn("failed to release claim", zap.String("notification", n.ID), zap.Error(err))
		}
	}
}

func (s *Service) write(ctx context.Context, passID string, upd notification.TerminalUpdate) error {
	if upd.Status == model.StatusSent {
		return s.queue.MarkSent(ctx, upd.ID, passID, upd.At)
	}
	reason := ""
	if upd.Error != nil {
		reason = *upd.Error
	}
	return s.queue.MarkFailed(ctx, upd.ID, passID, reason, upd.At)
}
