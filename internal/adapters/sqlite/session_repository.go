package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"gorm.io/gorm"
)

type sessionModel struct {
	ID              string    `gorm:"column:id;primaryKey"`
	UserID          string    `gorm:"column:user_id;not null"`
	TokenHash       string    `gorm:"column:token_hash;not null"`
	Browser         string    `gorm:"column:browser;not null"`
	OS              string    `gorm:"column:os;not null"`
	DeviceType      string    `gorm:"column:device_type;not null"`
	UserAgent       string    `gorm:"column:user_agent;not null"`
	IPAddress       string    `gorm:"column:ip_address;not null"`
	GeolocationJSON *string   `gorm:"column:geolocation_json"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
	LastActivityAt  time.Time `gorm:"column:last_activity_at;not null"`
	ExpiresAt       time.Time `gorm:"column:expires_at;not null"`
}

func (sessionModel) TableName() string {
	return "sessions"
}

type SessionRepository struct {
	db *gormsqlite.DB
}

func NewSessionRepository(db *gormsqlite.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s domain.Session) error {
	geo, err := geolocationColumn(s.Geolocation)
	if err != nil {
		return err
	}
	model := sessionModel{
		ID:              s.ID,
		UserID:          s.UserID,
		TokenHash:       s.TokenHash,
		Browser:         s.Device.Browser,
		OS:              s.Device.OS,
		DeviceType:      s.Device.DeviceType,
		UserAgent:       s.Device.UserAgent,
		IPAddress:       s.IPAddress,
		GeolocationJSON: geo,
		CreatedAt:       s.CreatedAt.UTC(),
		LastActivityAt:  s.LastActivityAt.UTC(),
		ExpiresAt:       s.ExpiresAt.UTC(),
	}
	err = r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) FindByTokenHash(ctx context.Context, tokenHash string) (domain.Session, error) {
	var model sessionModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("token_hash = ?", tokenHash).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("find session: %w", err)
	}
	return toSessionDomain(model), nil
}

func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	var affected int64
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Model(&sessionModel{}).Where("id = ?", id).Update("last_activity_at", at.UTC())
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	var rows []sessionModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("user_id = ?", userID).
			Order("last_activity_at DESC").
			Order("id").
			Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	result := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		result = append(result, toSessionDomain(row))
	}
	return result, nil
}

func (r *SessionRepository) Delete(ctx context.Context, userID, id string) (bool, error) {
	n, err := r.delete(ctx, "delete session", "id = ? AND user_id = ?", id, userID)
	return n > 0, err
}

func (r *SessionRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) (bool, error) {
	n, err := r.delete(ctx, "delete session by token", "token_hash = ?", tokenHash)
	return n > 0, err
}

func (r *SessionRepository) DeleteOthers(ctx context.Context, userID, keepTokenHash string) (int64, error) {
	return r.delete(ctx, "delete other sessions", "user_id = ? AND token_hash <> ?", userID, keepTokenHash)
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.delete(ctx, "delete expired sessions", "expires_at <= ?", now.UTC())
}

func (r *SessionRepository) delete(ctx context.Context, op string, where string, args ...any) (int64, error) {
	var affected int64
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where(where, args...).Delete(&sessionModel{})
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return affected, nil
}

func toSessionDomain(m sessionModel) domain.Session {
	return domain.Session{
		ID:        m.ID,
		UserID:    m.UserID,
		TokenHash: m.TokenHash,
		Device: domain.DeviceInfo{
			Browser:    m.Browser,
			OS:         m.OS,
			DeviceType: m.DeviceType,
			UserAgent:  m.UserAgent,
		},
		Geolocation:    geolocationFromColumn(m.GeolocationJSON),
		IPAddress:      m.IPAddress,
		CreatedAt:      m.CreatedAt.UTC(),
		LastActivityAt: m.LastActivityAt.UTC(),
		ExpiresAt:      m.ExpiresAt.UTC(),
	}
}
