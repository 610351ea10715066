package models

import (
	"time"
)

// ChatMessage is one immutable line of a chat room's history.
type ChatMessage struct {
	RoomID     string    `json:"roomId"`     // Room the message was posted to
	Sender     string    `json:"sender"`     // User ID of the author
	SenderName string    `json:"senderName"` // Display name of the author
	Body       string    `json:"message"`    // Message content
	SentAt     time.Time `json:"timestamp"`  // Server-assigned, UTC
}
