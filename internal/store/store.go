package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"dream-push-backend/internal/model"
	"dream-push-backend/internal/pusherr"
)

// Registry is the device token registry.
type Registry interface {
	UpsertToken(ctx context.Context, reg Registration) (model.DeviceToken, error)
	ListActive(ctx context.Context, userID string) ([]model.DeviceToken, error)
	Deactivate(ctx context.Context, token string) error
	DeactivateForUser(ctx context.Context, userID, token string) error
	// FetchActiveTokens is the privileged bulk read used by the dispatcher.
	FetchActiveTokens(ctx context.Context, userID string) ([]model.TokenRef, error)
}

// Queue is the notification queue.
type Queue interface {
	ListPending(ctx context.Context, limit int) ([]model.QueuedNotification, error)
	ClaimPending(ctx context.Context, claimer string, now time.Time, lease time.Duration, limit int) ([]model.QueuedNotification, error)
	MarkSent(ctx context.Context, id, claimer string, at time.Time) error
	MarkFailed(ctx context.Context, id, claimer, reason string, at time.Time) error
	// RenewClaim extends claimer's lease on a row before it is dispatched.
	RenewClaim(ctx context.Context, id, claimer string, now time.Time, lease time.Duration) error
	ReleaseClaim(ctx context.Context, id, claimer string) error
}

// Store defines the interface for all database operations.
type Store interface {
	Registry
	Queue
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// UpsertToken inserts the (user, token) pair or refreshes the existing row.
func (s *gormStore) UpsertToken(ctx context.Context, reg Registration) (model.DeviceToken, error) {
	now := time.Now().UTC()
	token := model.DeviceToken{
		UserID:     reg.UserID,
		Token:      reg.Token,
		Platform:   reg.Platform,
		DeviceInfo: datatypes.NewJSONType(reg.Info),
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"platform", "device_info", "active", "updated_at"}),
	}).Create(&token).Error
	if err != nil {
		return model.DeviceToken{}, pusherr.Storage.Wrap(fmt.Errorf("upsert device token for user %s: %w", reg.UserID, err))
	}

	// The row id is the original one when the insert hit the conflict path.
	var stored model.DeviceToken
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND token = ?", reg.UserID, reg.Token).
		First(&stored).Error; err != nil {
		return model.DeviceToken{}, pusherr.Storage.Wrap(fmt.Errorf("reload device token for user %s: %w", reg.UserID, err))
	}
	return stored, nil
}

// ListActive returns the user's active device tokens, oldest first.
func (s *gormStore) ListActive(ctx context.Context, userID string) ([]model.DeviceToken, error) {
	var tokens []model.DeviceToken
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Order("created_at ASC").
		Find(&tokens).Error; err != nil {
		return nil, pusherr.Storage.Wrap(fmt.Errorf("list active tokens for user %s: %w", userID, err))
	}
	return tokens, nil
}

// Deactivate clears the active flag on every row holding token.
func (s *gormStore) Deactivate(ctx context.Context, token string) error {
	err := s.db.WithContext(ctx).
		Model(&model.DeviceToken{}).
		Where("token = ?", token).
		Updates(map[string]any{"active": false, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return pusherr.Storage.Wrap(fmt.Errorf("deactivate device token: %w", err))
	}
	return nil
}

// DeactivateForUser clears the active flag on the user's row for token only.
func (s *gormStore) DeactivateForUser(ctx context.Context, userID, token string) error {
	err := s.db.WithContext(ctx).
		Model(&model.DeviceToken{}).
		Where("user_id = ? AND token = ?", userID, token).
		Updates(map[string]any{"active": false, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return pusherr.Storage.Wrap(fmt.Errorf("deactivate device token for user %s: %w", userID, err))
	}
	return nil
}

// FetchActiveTokens returns (id, token, platform) of the user's active tokens.
func (s *gormStore) FetchActiveTokens(ctx context.Context, userID string) ([]model.TokenRef, error) {
	var refs []model.TokenRef
	if err := s.db.WithContext(ctx).
		Model(&model.DeviceToken{}).
		Select("id", "token", "platform").
		Where("user_id = ? AND active = ?", userID, true).
		Order("created_at ASC").
		Scan(&refs).Error; err != nil {
		return nil, pusherr.Storage.Wrap(fmt.Errorf("fetch active tokens for user %s: %w", userID, err))
	}
	return refs, nil
}

// ListPending returns up to limit pending notifications, oldest first.
func (s *gormStore) ListPending(ctx context.Context, limit int) ([]model.QueuedNotification, error) {
	var rows []model.QueuedNotification
	if err := s.db.WithContext(ctx).
		Where("status = ?", model.StatusPending).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, pusherr.Storage.Wrap(fmt.Errorf("list pending notifications: %w", err))
	}
	return rows, nil
}

// ClaimPending leases up to limit claimable pending rows to claimer and
// returns them, oldest first. A row is claimable when it has no lease or its
// lease expired before now.
func (s *gormStore) ClaimPending(ctx context.Context, claimer string, now time.Time, lease time.Duration, limit int) ([]model.QueuedNotification, error) {
	now = now.UTC()

	claimable := s.db.WithContext(ctx).
		Model(&model.QueuedNotification{}).
		Select("id").
		Where("status = ?", model.StatusPending).
		Where("(claim_expires_at IS NULL OR claim_expires_at < ?)", now).
		Order("created_at ASC, id ASC").
		Limit(limit)

	// The claimable predicate is repeated on the outer statement so a row
	// leased by a concurrent pass in the meantime is left alone.
	if err := s.db.WithContext(ctx).
		Model(&model.QueuedNotification{}).
		Where("id IN (?)", claimable).
		Where("status = ?", model.StatusPending).
		Where("(claim_expires_at IS NULL OR claim_expires_at < ?)", now).
		Updates(map[string]any{"claimed_by": claimer, "claim_expires_at": now.Add(lease)}).Error; err != nil {
		return nil, pusherr.Storage.Wrap(fmt.Errorf("claim pending notifications: %w", err))
	}

	var rows []model.QueuedNotification
	if err := s.db.WithContext(ctx).
		Where("claimed_by = ? AND status = ?", claimer, model.StatusPending).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, pusherr.Storage.Wrap(fmt.Errorf("load claimed notifications: %w", err))
	}
	return rows, nil
}

// MarkSent records a successful delivery.
func (s *gormStore) MarkSent(ctx context.Context, id, claimer string, at time.Time) error {
	return s.finalize(ctx, id, claimer, map[string]any{
		"status":           model.StatusSent,
		"sent_at":          at.UTC(),
		"error_message":    nil,
		"claim_expires_at": nil,
	})
}

// MarkFailed records a terminal failure with its reason.
func (s *gormStore) MarkFailed(ctx context.Context, id, claimer, reason string, at time.Time) error {
	return s.finalize(ctx, id, claimer, map[string]any{
		"status":           model.StatusFailed,
		"failed_at":        at.UTC(),
		"error_message":    reason,
		"claim_expires_at": nil,
	})
}

// RenewClaim pushes the lease of a row still held by claimer to now+lease.
// It returns ErrAlreadyClaimed when another pass took the row over or it is
// no longer pending.
func (s *gormStore) RenewClaim(ctx context.Context, id, claimer string, now time.Time, lease time.Duration) error {
	return s.updateClaimed(ctx, "renew claim on", id, claimer, map[string]any{
		"claim_expires_at": now.UTC().Add(lease),
	})
}

// ReleaseClaim drops claimer's lease so the next pass can pick the row up
// immediately.
func (s *gormStore) ReleaseClaim(ctx context.Context, id, claimer string) error {
	return s.updateClaimed(ctx, "release claim on", id, claimer, map[string]any{
		"claimed_by":       "",
		"claim_expires_at": nil,
	})
}

func (s *gormStore) finalize(ctx context.Context, id, claimer string, updates map[string]any) error {
	return s.updateClaimed(ctx, "finalize", id, claimer, updates)
}

func (s *gormStore) updateClaimed(ctx context.Context, op, id, claimer string, updates map[string]any) error {
	res := s.db.WithContext(ctx).
		Model(&model.QueuedNotification{}).
		Where("id = ? AND status = ? AND claimed_by = ?", id, model.StatusPending, claimer).
		Updates(updates)
	if res.Error != nil {
		return pusherr.Storage.Wrap(fmt.Errorf("%s notification %s: %w", op, id, res.Error))
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}
