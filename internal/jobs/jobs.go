// Package jobs tracks background model-download jobs executed by the worker.
package jobs

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

type PullJob struct {
	ID     string `gorm:"primaryKey;size:26" json:"id"` // ULID length
	UserID uint64 `gorm:"index;not null" json:"-"`
	Model  string `gorm:"type:varchar(128);not null" json:"model"`

	IdempotencyKey *string `gorm:"type:varchar(128);index:uniq_pull_idempo,unique" json:"-"`

	Status   Status `gorm:"type:varchar(16);index;not null" json:"status"`
	Progress int    `gorm:"not null;default:0" json:"progress"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PullJob) TableName() string { return "pull_jobs" }

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, job *PullJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) Get(ctx context.Context, id string) (*PullJob, error) {
	var j PullJob
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) GetByIdempotencyKey(ctx context.Context, userID uint64, key string) (*PullJob, error) {
	var j PullJob
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&j).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

// CreateOrGetExisting creates the job, or returns the existing one when the
// caller's idempotency key was already used.
func (r *Repo) CreateOrGetExisting(ctx context.Context, job *PullJob) (*PullJob, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.GetByIdempotencyKey(ctx, job.UserID, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}

func (r *Repo) MarkRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&PullJob{}).
		Where("id = ? AND status = ?", id, StatusQueued).
		Update("status", StatusRunning).Error
}

func (r *Repo) UpdateProgress(ctx context.Context, id string, progress int) error {
	return r.db.WithContext(ctx).Model(&PullJob{}).
		Where("id = ?", id).
		Update("progress", progress).Error
}

func (r *Repo) MarkSucceeded(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&PullJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":   StatusSucceeded,
			"progress": 100,
			"error":    nil,
		}).Error
}

func (r *Repo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&PullJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status": StatusFailed,
			"error":  errMsg,
		}).Error
}
