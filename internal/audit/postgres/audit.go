package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/approvalflow/approval-gateway/internal/audit"
)

type auditRecord struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	EventID    string `gorm:"column:event_id;uniqueIndex"`
	EventType  string `gorm:"column:event_type;index"`
	SessionID  string `gorm:"column:session_id"`
	UserID     int64  `gorm:"column:user_id;index"`
	RequestID  int64  `gorm:"column:request_id"`
	Payload    string `gorm:"column:payload"`
	OccurredAt time.Time
	CreatedAt  time.Time
}

func (auditRecord) TableName() string {
	return "audit_events"
}

// AuditRepository implements audit.Repository using GORM.
type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) audit.Repository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Insert(ctx context.Context, entry *audit.Entry) error {
	rec := auditRecord{
		EventID:    entry.EventID,
		EventType:  entry.EventType,
		SessionID:  entry.SessionID,
		UserID:     entry.UserID,
		RequestID:  entry.RequestID,
		Payload:    entry.Payload,
		OccurredAt: entry.OccurredAt,
		CreatedAt:  time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return err
	}
	entry.ID = rec.ID
	entry.CreatedAt = rec.CreatedAt
	return nil
}

func (r *AuditRepository) List(ctx context.Context, q audit.ListQuery) ([]audit.Entry, error) {
	query := r.db.WithContext(ctx).Model(&auditRecord{})
	if q.EventType != "" {
		query = query.Where("event_type = ?", q.EventType)
	}
	if q.UserID != 0 {
		query = query.Where("user_id = ?", q.UserID)
	}

	var recs []auditRecord
	err := query.Order("occurred_at DESC").
		Limit(q.Limit).
		Offset(q.Offset).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	entries := make([]audit.Entry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, audit.Entry{
			ID:         rec.ID,
			EventID:    rec.EventID,
			EventType:  rec.EventType,
			SessionID:  rec.SessionID,
			UserID:     rec.UserID,
			RequestID:  rec.RequestID,
			Payload:    rec.Payload,
			OccurredAt: rec.OccurredAt,
			CreatedAt:  rec.CreatedAt,
		})
	}
	return entries, nil
}
