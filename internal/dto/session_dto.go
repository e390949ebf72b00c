package dto

import (
	"time"

	"github.com/google/uuid"
)

type UploadVideoResponse struct {
	TaskId   string `json:"task_id"`
	Url      string `json:"url"`
	FileName string `json:"file_name"`
}

type UploadReferenceResponse struct {
	FileId     string    `json:"file_id"`
	FileName   string    `json:"file_name"`
	UploadTime time.Time `json:"upload_time"`
}

type SendChatRequest struct {
	Question string `json:"question" validate:"required"`
}

type MessageDTO struct {
	Id        uuid.UUID `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Pending   bool      `json:"pending"`
}

type SendChatResponse struct {
	Sent   *MessageDTO `json:"sent"`
	Reply  *MessageDTO `json:"reply"`
	Failed bool        `json:"failed"`
}

// ExportReportRequest carries the client-captured PNG of the composed review
// view, base64 encoded. Optional: an empty snapshot yields a text-only report.
type ExportReportRequest struct {
	Snapshot string `json:"snapshot,omitempty"`
}
