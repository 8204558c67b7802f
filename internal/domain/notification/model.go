package notification

import (
	"time"

	"github.com/google/uuid"
)

// Notification is a broadcast to one or more users. Recipients and the set
// of users who have read it are stored as uuid arrays on the row.
type Notification struct {
	ID         uuid.UUID   `db:"id" json:"id"`
	Title      string      `db:"title" json:"title"`
	Message    string      `db:"message" json:"message"`
	Recipients []uuid.UUID `db:"recipients" json:"recipients"`
	ReadBy     []uuid.UUID `db:"read_by" json:"read_by"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}

// Read reports whether the user has marked this notification read.
func (n *Notification) Read(userID uuid.UUID) bool {
	for _, id := range n.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// View is a notification as seen by one recipient.
type View struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
