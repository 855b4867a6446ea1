package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tomliptrot/handwriting-app/internal/domain/code"
)

// Message is an outbound completion email.
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
}

// Mailer hands a message to the actual email provider.
type Mailer interface {
	Send(ctx context.Context, msg Message) (messageID string, err error)
}

// LogMailer records messages to the log instead of sending them. It
// stands in for the provider in local and trusted deployments.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) Send(_ context.Context, msg Message) (string, error) {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	logger.Info("completion email (log only)",
		"message_id", id,
		"to", msg.To,
		"subject", msg.Subject)
	return id, nil
}

// Handler is the server side of the email function contract.
type Handler struct {
	mailer     Mailer
	adminEmail string
	domain     string
	logger     *slog.Logger
}

// NewHandler creates the email function endpoint.
func NewHandler(mailer Mailer, adminEmail, domain string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{mailer: mailer, adminEmail: adminEmail, domain: domain, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, EmailResponse{Error: "Method not allowed"})
		return
	}

	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, EmailResponse{Error: "invalid request body"})
		return
	}
	if req.WorkerID == "" || req.CompletedImages == 0 || req.CompletionCode == "" {
		writeJSON(w, http.StatusBadRequest, EmailResponse{Error: "Missing required fields"})
		return
	}

	startedAt := "Unknown"
	if req.SessionStartTime > 0 {
		startedAt = time.UnixMilli(req.SessionStartTime).Format(time.RFC1123)
	}
	duration := req.SessionDuration
	if duration == "" {
		duration = code.FormatDuration(0)
	}

	msg := Message{
		From:    fmt.Sprintf("Handwriting Collection <noreply@%s>", h.domain),
		To:      h.adminEmail,
		Subject: fmt.Sprintf("Task Completed: Worker %s (%d images)", req.WorkerID, req.CompletedImages),
		Text: fmt.Sprintf(
			"New Task Completion\n\nWorker ID: %s\nImages Completed: %d\nSession Duration: %s\nCodes Skipped: %d\nStarted At: %s\nCompletion Code: %s\n",
			req.WorkerID, req.CompletedImages, duration, req.SkippedCodes, startedAt, req.CompletionCode),
	}

	id, err := h.mailer.Send(r.Context(), msg)
	if err != nil {
		h.logger.Error("completion email send failed", "worker_id", req.WorkerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, EmailResponse{Error: "Failed to send email"})
		return
	}

	writeJSON(w, http.StatusOK, EmailResponse{Success: true, MessageID: id})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
