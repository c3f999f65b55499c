package chat

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatRoom struct {
	ID     string `gorm:"primaryKey;size:26" json:"id"` // ULID length
	UserID uint64 `gorm:"index;not null" json:"-"`
	Title  string `gorm:"type:varchar(64);not null" json:"title"`

	// Learner language pair; empty until set by a chat turn.
	MainLanguage     string `gorm:"type:varchar(32)" json:"mainLanguage"`
	LearningLanguage string `gorm:"type:varchar(32)" json:"learningLanguage"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ChatRoom) TableName() string { return "chat_rooms" }

// Message is append-only; creation order is the only ordering guarantee.
type Message struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatRoomID string    `gorm:"size:26;index;not null" json:"chat_room_id"`
	Role       string    `gorm:"type:varchar(16);not null" json:"role"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }

// RoomSummary is one row of the room list.
type RoomSummary struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	UpdatedAt   time.Time `json:"updatedAt"`
	LastMessage *string   `json:"lastMessage"`
}
