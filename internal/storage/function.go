package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"
)

// FunctionStore is the production upload path: it posts the image as
// a base64 data URL plus metadata to an intermediary server-side
// function which performs the durable write.
type FunctionStore struct {
	url    string
	client *http.Client
}

// NewFunctionStore creates a client for the upload function endpoint.
func NewFunctionStore(url string) *FunctionStore {
	return &FunctionStore{
		url:    url,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// UploadRequest is the wire contract of the upload function.
type UploadRequest struct {
	ImageData string         `json:"imageData"`
	Filename  string         `json:"filename"`
	S3Key     string         `json:"s3Key"`
	Metadata  UploadMetadata `json:"metadata"`
}

// UploadMetadata carries the identifying fields alongside the image.
type UploadMetadata struct {
	WorkerID  string `json:"workerId"`
	SessionID string `json:"sessionId"`
	Code      string `json:"code"`
}

// UploadResponse is the upload function's reply.
type UploadResponse struct {
	Success  bool   `json:"success"`
	Key      string `json:"key,omitempty"`
	Location string `json:"location,omitempty"`
	Error    string `json:"error,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Put encodes the body as a data URL and posts it to the function.
func (s *FunctionStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string, metadata map[string]string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read upload body: %w", err)
	}

	payload := UploadRequest{
		ImageData: "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data),
		Filename:  path.Base(key),
		S3Key:     key,
		Metadata: UploadMetadata{
			WorkerID:  metadata[MetaWorkerID],
			SessionID: metadata[MetaSessionID],
			Code:      metadata[MetaOriginalCode],
		},
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal upload request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upload failed: %s", resp.Status)
	}

	var result UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode upload response: %w", err)
	}
	if !result.Success {
		msg := result.Message
		if msg == "" {
			msg = result.Error
		}
		return fmt.Errorf("upload rejected: %s", msg)
	}
	return nil
}
