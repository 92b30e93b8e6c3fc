package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/trustgate/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	"github.com/google/uuid"
)

type auditLogModel struct {
	ID              int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID          string    `gorm:"column:user_id;not null"`
	Action          string    `gorm:"column:action;not null"`
	ResourceType    string    `gorm:"column:resource_type;not null"`
	ResourceID      string    `gorm:"column:resource_id;not null"`
	DetailsJSON     *string   `gorm:"column:details_json"`
	IPAddress       string    `gorm:"column:ip_address;not null"`
	UserAgent       string    `gorm:"column:user_agent;not null"`
	GeolocationJSON *string   `gorm:"column:geolocation_json"`
	Severity        string    `gorm:"column:severity;not null"`
	OccurredAt      time.Time `gorm:"column:occurred_at;not null"`
}

func (auditLogModel) TableName() string {
	return "audit_logs"
}

type outboxEventModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID       string     `gorm:"column:event_id;not null"`
	Topic         string     `gorm:"column:topic;not null"`
	PayloadJSON   string     `gorm:"column:payload_json;not null"`
	Status        string     `gorm:"column:status;not null"`
	Attempts      int        `gorm:"column:attempts;not null"`
	NextAttemptAt time.Time  `gorm:"column:next_attempt_at;not null"`
	LastError     string     `gorm:"column:last_error;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
}

func (outboxEventModel) TableName() string {
	return "outbox_events"
}

type AuditLogRepository struct {
	db *gormsqlite.DB
}

func NewAuditLogRepository(db *gormsqlite.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Append inserts entry. When alertTopic is set an outbox row carrying the
// alert envelope is written in the same transaction.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry, alertTopic string) (domain.AuditLogEntry, error) {
	model, err := toAuditModel(entry)
	if err != nil {
		return domain.AuditLogEntry{}, err
	}

	err = r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
		entry.ID = model.ID
		if alertTopic == "" {
			return nil
		}

		eventID := uuid.NewString()
		payload, err := json.Marshal(domain.NewAlertEnvelope(eventID, entry))
		if err != nil {
			return fmt.Errorf("marshal alert envelope: %w", err)
		}
		now := time.Now().UTC()
		outbox := outboxEventModel{
			EventID:       eventID,
			Topic:         alertTopic,
			PayloadJSON:   string(payload),
			Status:        string(domain.OutboxPending),
			NextAttemptAt: now,
			CreatedAt:     now,
		}
		if err := tx.Create(&outbox).Error; err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.AuditLogEntry{}, err
	}
	return entry, nil
}

// List returns entries matching every non-empty filter field, newest first.
func (r *AuditLogRepository) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditLogEntry, error) {
	var rows []auditLogModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&auditLogModel{})
		if filter.UserID != "" {
			query = query.Where("user_id = ?", filter.UserID)
		}
		if filter.Action != "" {
			query = query.Where("action = ?", filter.Action)
		}
		if filter.ResourceType != "" {
			query = query.Where("resource_type = ?", filter.ResourceType)
		}
		if filter.ResourceID != "" {
			query = query.Where("resource_id = ?", filter.ResourceID)
		}
		if !filter.Since.IsZero() {
			query = query.Where("occurred_at >= ?", filter.Since.UTC())
		}
		if filter.Before > 0 {
			query = query.Where("id < ?", filter.Before)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		return query.Order("id DESC").Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	result := make([]domain.AuditLogEntry, 0, len(rows))
	for _, row := range rows {
		result = append(result, toAuditDomain(row))
	}
	return result, nil
}

func (r *AuditLogRepository) Stats(ctx context.Context, now time.Time) (domain.AuditStats, error) {
	type severityCount struct {
		Severity string
		Count    int64
	}

	stats := domain.AuditStats{BySeverity: make(map[domain.Severity]int64, 4)}
	for _, s := range domain.Severities() {
		stats.BySeverity[s] = 0
	}

	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		var counts []severityCount
		if err := tx.Model(&auditLogModel{}).
			Select("severity, COUNT(*) AS count").
			Group("severity").
			Scan(&counts).Error; err != nil {
			return fmt.Errorf("count by severity: %w", err)
		}
		for _, c := range counts {
			stats.BySeverity[domain.Severity(c.Severity)] = c.Count
			stats.Total += c.Count
		}

		now = now.UTC()
		if err := tx.Model(&auditLogModel{}).
			Where("occurred_at >= ?", now.Add(-24*time.Hour)).
			Count(&stats.Last24h).Error; err != nil {
			return fmt.Errorf("count last 24h: %w", err)
		}
		if err := tx.Model(&auditLogModel{}).
			Where("occurred_at >= ?", now.Add(-7*24*time.Hour)).
			Count(&stats.Last7d).Error; err != nil {
			return fmt.Errorf("count last 7d: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.AuditStats{}, err
	}
	return stats, nil
}

func toAuditModel(entry domain.AuditLogEntry) (auditLogModel, error) {
	geo, err := geolocationColumn(entry.Geolocation)
	if err != nil {
		return auditLogModel{}, err
	}
	model := auditLogModel{
		UserID:          entry.UserID,
		Action:          entry.Action,
		ResourceType:    entry.ResourceType,
		ResourceID:      entry.ResourceID,
		IPAddress:       entry.IPAddress,
		UserAgent:       entry.UserAgent,
		GeolocationJSON: geo,
		Severity:        string(entry.Severity),
		OccurredAt:      entry.Timestamp.UTC(),
	}
	if len(entry.Details) > 0 {
		details := string(entry.Details)
		model.DetailsJSON = &details
	}
	return model, nil
}

func toAuditDomain(row auditLogModel) domain.AuditLogEntry {
	entry := domain.AuditLogEntry{
		ID:           row.ID,
		UserID:       row.UserID,
		Action:       row.Action,
		ResourceType: row.ResourceType,
		ResourceID:   row.ResourceID,
		IPAddress:    row.IPAddress,
		UserAgent:    row.UserAgent,
		Geolocation:  geolocationFromColumn(row.GeolocationJSON),
		Severity:     domain.Severity(row.Severity),
		Timestamp:    row.OccurredAt.UTC(),
	}
	if row.DetailsJSON != nil {
		entry.Details = json.RawMessage(*row.DetailsJSON)
	}
	return entry
}
