package store

import (
	"time"

	"github.com/google/uuid"
)

// VideoRef identifies an uploaded surgical video and the backend task that
// transcribes it. Created once the upload completes, immutable afterwards.
type VideoRef struct {
	TaskId   string `json:"task_id"`
	Url      string `json:"url"`
	FileName string `json:"file_name"`
}

// ReferenceItem is an uploaded reference document attached to the session.
type ReferenceItem struct {
	FileId     string    `json:"file_id"`
	FileName   string    `json:"file_name"`
	UploadTime time.Time `json:"upload_time"`
}

// Message is one entry in the conversation. Assistant messages are created
// empty with Pending=true and resolved in place once a reply arrives.
type Message struct {
	Id        uuid.UUID `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Pending   bool      `json:"pending"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// LoadingKey names one operation family gated by its own loading flag.
type LoadingKey string

const (
	LoadingUpload LoadingKey = "upload"
	LoadingParse  LoadingKey = "parse"
	LoadingChat   LoadingKey = "chat"
	LoadingExport LoadingKey = "export"
)

// Session is the in-memory aggregate for one active review. It exists only
// for the lifetime of the process; nothing here survives a restart.
type Session struct {
	Video      *VideoRef           `json:"video"`
	Transcript string              `json:"transcript"`
	References []ReferenceItem     `json:"references"`
	Messages   []Message           `json:"messages"`
	Loading    map[LoadingKey]bool `json:"loading"`
}
