// Package notes implements owner-scoped note CRUD.
package notes

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Note struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"` // UUID
	UserID    uint64    `gorm:"index;not null" json:"-"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Note) TableName() string { return "notes" }

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, userID uint64, title, content string) (*Note, error) {
	note := &Note{
		ID:      uuid.NewString(),
		UserID:  userID,
		Title:   title,
		Content: content,
	}
	if err := r.db.WithContext(ctx).Create(note).Error; err != nil {
		return nil, err
	}
	return note, nil
}

// Get is owner-scoped; someone else's note reads as not found.
func (r *Repo) Get(ctx context.Context, id string, userID uint64) (*Note, error) {
	var note Note
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&note).Error; err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *Repo) List(ctx context.Context, userID uint64) ([]Note, error) {
	var out []Note
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) Update(ctx context.Context, id string, userID uint64, title, content string) (*Note, error) {
	note, err := r.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	note.Title = title
	note.Content = content
	if err := r.db.WithContext(ctx).Save(note).Error; err != nil {
		return nil, err
	}
	return note, nil
}

func (r *Repo) Delete(ctx context.Context, id string, userID uint64) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&Note{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
