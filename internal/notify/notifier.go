// Package notify dispatches completion summaries through the
// transactional email function.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/tomliptrot/handwriting-app/internal/domain/code"
	"github.com/tomliptrot/handwriting-app/internal/domain/session"
)

// EmailRequest is the wire contract of the email function.
// workerId, completedImages and completionCode are required; the
// function answers 400 when any is absent.
type EmailRequest struct {
	WorkerID         string `json:"workerId"`
	CompletedImages  int    `json:"completedImages"`
	SessionDuration  string `json:"sessionDuration"`
	CompletionCode   string `json:"completionCode"`
	SkippedCodes     int    `json:"skippedCodes"`
	SessionStartTime int64  `json:"sessionStartTime"`
}

// EmailResponse is the email function's reply.
type EmailResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Notifier posts completion summaries to the email function. Every
// failure is logged and dropped: the session is already finished when
// Notify runs, and nothing here may alter that.
type Notifier struct {
	url     string
	enabled bool
	client  *http.Client
	logger  *slog.Logger
}

// New creates a notifier for the email function endpoint.
func New(url string, enabled bool, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		url:     url,
		enabled: enabled,
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// Notify formats and dispatches the completion summary.
func (n *Notifier) Notify(ctx context.Context, summary session.CompletionSummary) {
	if !n.enabled {
		n.logger.Info("completion email disabled", "worker_id", summary.WorkerID)
		return
	}

	payload := EmailRequest{
		WorkerID:         summary.WorkerID,
		CompletedImages:  summary.CompletedImages,
		SessionDuration:  code.FormatDuration(summary.DurationSeconds),
		CompletionCode:   summary.CompletionCode,
		SkippedCodes:     summary.SkippedCodes,
		SessionStartTime: summary.StartedAt.UnixMilli(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn("completion email marshal failed", "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("completion email request failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn("completion email send failed", "worker_id", summary.WorkerID, "error", err)
		return
	}
	defer resp.Body.Close()

	var result EmailResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		n.logger.Warn("completion email response unreadable", "status", resp.StatusCode, "error", err)
		return
	}
	if !result.Success {
		n.logger.Warn("completion email rejected", "worker_id", summary.WorkerID, "status", resp.StatusCode, "error", result.Error)
		return
	}

	n.logger.Info("completion email sent", "worker_id", summary.WorkerID, "message_id", result.MessageID)
}
