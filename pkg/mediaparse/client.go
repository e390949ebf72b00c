package mediaparse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// UploadError marks a failed upload to the media backend. Recoverable: the
// caller may retry the upload, nothing in the session is left inconsistent.
type UploadError struct {
	FileName string
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload of %q failed: %v", e.FileName, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// VideoUpload is the backend's answer to a video upload. The task id refers
// to the asynchronous transcription job.
type VideoUpload struct {
	TaskId   string `json:"taskId"`
	Url      string `json:"url"`
	FileName string `json:"fileName"`
}

// ReferenceUpload is the backend's answer to a reference document upload.
type ReferenceUpload struct {
	FileId   string `json:"fileId"`
	FileName string `json:"fileName"`
}

type parseStatusResponse struct {
	Transcript *string `json:"transcript"`
}

// Client talks to the media processing backend. It is the only place that
// knows the backend's routes; everything above it works with the returned
// structs. The backend itself (task queue, speech model) is opaque.
type Client struct {
	BaseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// UploadVideo sends the surgical video and returns the transcription task
// handle. Failures come back as *UploadError.
func (c *Client) UploadVideo(ctx context.Context, fileName string, file io.Reader) (*VideoUpload, error) {
	var out VideoUpload
	if err := c.uploadFile(ctx, "/uploadVideo", fileName, file, &out); err != nil {
		return nil, &UploadError{FileName: fileName, Err: err}
	}
	if out.FileName == "" {
		out.FileName = fileName
	}
	return &out, nil
}

// UploadReference sends a reference document and returns its file handle.
func (c *Client) UploadReference(ctx context.Context, fileName string, file io.Reader) (*ReferenceUpload, error) {
	var out ReferenceUpload
	if err := c.uploadFile(ctx, "/uploadReference", fileName, file, &out); err != nil {
		return nil, &UploadError{FileName: fileName, Err: err}
	}
	if out.FileName == "" {
		out.FileName = fileName
	}
	return &out, nil
}

// ParseStatus asks the backend for the transcription result of a task.
// An empty transcript with a nil error means the task is still processing;
// errors are transport-level and the caller decides whether to retry.
func (c *Client) ParseStatus(ctx context.Context, taskId string) (string, error) {
	endpoint := c.BaseURL + "/parseResult?" + url.Values{"taskId": {taskId}}.Encode()
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("parse status request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("parse status error: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var status parseStatusResponse
	if err := json.Unmarshal(bodyBytes, &status); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}

	if status.Transcript == nil {
		return "", nil // still processing
	}
	return *status.Transcript, nil
}

func (c *Client) uploadFile(ctx context.Context, path, fileName string, file io.Reader, out interface{}) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy file content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+path, &body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload error: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
