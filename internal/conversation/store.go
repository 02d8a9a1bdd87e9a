package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a conversation id is unknown.
var ErrNotFound = errors.New("conversation not found")

type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Title     *string   `json:"title"`
}

type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store persists relay transcripts.
type Store interface {
	Create(ctx context.Context, title *string) (*Conversation, error)
	Get(ctx context.Context, id string) (*Conversation, error)
	Append(ctx context.Context, conversationID, role, content string) (*Message, error)
	List(ctx context.Context, conversationID string) ([]Message, error)
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func now() time.Time {
	return time.Now().UTC()
}
