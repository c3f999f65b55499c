package chat

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateRoom(ctx context.Context, room *ChatRoom) error {
	return r.db.WithContext(ctx).Create(room).Error
}

// GetRoom is owner-scoped; a room belonging to someone else reads as not found.
func (r *Repo) GetRoom(ctx context.Context, id string, userID uint64) (*ChatRoom, error) {
	var room ChatRoom
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *Repo) UpdateRoomLanguages(ctx context.Context, id string, main, learning string) error {
	return r.db.WithContext(ctx).Model(&ChatRoom{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"main_language":     main,
			"learning_language": learning,
		}).Error
}

func (r *Repo) touchRoom(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&ChatRoom{}).
		Where("id = ?", id).
		Update("updated_at", time.Now()).Error
}

// ListRooms returns the caller's rooms, most recently active first, each with
// its latest message.
func (r *Repo) ListRooms(ctx context.Context, userID uint64) ([]RoomSummary, error) {
	var rooms []ChatRoom
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&rooms).Error; err != nil {
		return nil, err
	}

	out := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summary := RoomSummary{ID: room.ID, Title: room.Title, UpdatedAt: room.UpdatedAt}

		var last Message
		err := r.db.WithContext(ctx).
			Where("chat_room_id = ?", room.ID).
			Order("id DESC").
			First(&last).Error
		switch err {
		case nil:
			content := last.Content
			summary.LastMessage = &content
		case gorm.ErrRecordNotFound:
			// empty room
		default:
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

// ListMessages returns a room's transcript oldest first.
func (r *Repo) ListMessages(ctx context.Context, roomID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("chat_room_id = ?", roomID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// InsertMessage appends a message and bumps the room's activity timestamp.
func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	return r.touchRoom(ctx, m.ChatRoomID)
}
