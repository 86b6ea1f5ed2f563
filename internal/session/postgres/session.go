package postgres

import (
	"context"
	"time"

	"github.com/approvalflow/approval-gateway/internal/session"
	"gorm.io/gorm"
)

// sessionRecord is the storage shape; refresh tokens are sealed before they
// are written and opened on read.
type sessionRecord struct {
	ID           string `gorm:"primaryKey"`
	AccessToken  string `gorm:"column:access_token"`
	RefreshToken string `gorm:"column:refresh_token"`
	UserJSON     string `gorm:"column:user_json"`
	LastActivity time.Time
	WarnedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (sessionRecord) TableName() string {
	return "sessions"
}

// SessionStore implements session.Store using GORM.
type SessionStore struct {
	db  *gorm.DB
	box *session.Box
}

func NewSessionStore(db *gorm.DB, box *session.Box) session.Store {
	return &SessionStore{db: db, box: box}
}

func (r *SessionStore) Save(ctx context.Context, sess *session.Session) error {
	sealed, err := r.box.Seal(sess.RefreshToken)
	if err != nil {
		return err
	}

	rec := sessionRecord{
		ID:           sess.ID,
		AccessToken:  sess.AccessToken,
		RefreshToken: sealed,
		UserJSON:     sess.UserJSON,
		LastActivity: sess.LastActivity,
		WarnedAt:     sess.WarnedAt,
		CreatedAt:    sess.CreatedAt,
		UpdatedAt:    time.Now(),
	}
	return r.db.WithContext(ctx).Save(&rec).Error
}

func (r *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	var rec sessionRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, session.ErrNotFound
		}
		return nil, err
	}

	refreshToken, err := r.box.Open(rec.RefreshToken)
	if err != nil {
		return nil, err
	}

	return &session.Session{
		ID:           rec.ID,
		AccessToken:  rec.AccessToken,
		RefreshToken: refreshToken,
		UserJSON:     rec.UserJSON,
		LastActivity: rec.LastActivity,
		WarnedAt:     rec.WarnedAt,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}, nil
}

func (r *SessionStore) Touch(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_activity": at,
			"warned_at":     nil,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (r *SessionStore) MarkWarned(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&sessionRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"warned_at":  at,
			"updated_at": time.Now(),
		}).Error
}

func (r *SessionStore) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&sessionRecord{}).Error
}

func (r *SessionStore) Active(ctx context.Context) ([]*session.Session, error) {
	var recs []sessionRecord
	err := r.db.WithContext(ctx).
		Where("access_token <> ''").
		Order("last_activity ASC").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	sessions := make([]*session.Session, 0, len(recs))
	for _, rec := range recs {
		refreshToken, err := r.box.Open(rec.RefreshToken)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, &session.Session{
			ID:           rec.ID,
			AccessToken:  rec.AccessToken,
			RefreshToken: refreshToken,
			UserJSON:     rec.UserJSON,
			LastActivity: rec.LastActivity,
			WarnedAt:     rec.WarnedAt,
			CreatedAt:    rec.CreatedAt,
			UpdatedAt:    rec.UpdatedAt,
		})
	}
	return sessions, nil
}

func (r *SessionStore) DeleteIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("last_activity < ?", cutoff).
		Delete(&sessionRecord{})
	return res.RowsAffected, res.Error
}
