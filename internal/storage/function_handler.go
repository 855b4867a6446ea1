package storage

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"time"
)

var dataURLPattern = regexp.MustCompile(`^data:([a-zA-Z0-9]+/[a-zA-Z0-9-.+]+);base64,`)

// FunctionHandler is the server side of the upload function contract:
// it accepts the base64 payload and performs the durable write through
// an ObjectStore.
type FunctionHandler struct {
	store  ObjectStore
	prefix string
	logger *slog.Logger
}

// NewFunctionHandler creates the upload function endpoint. prefix is
// the fallback key prefix when the client supplies no key.
func NewFunctionHandler(store ObjectStore, prefix string, logger *slog.Logger) *FunctionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FunctionHandler{store: store, prefix: prefix, logger: logger}
}

func (h *FunctionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, UploadResponse{Error: "Method not allowed"})
		return
	}

	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, UploadResponse{Error: "invalid request body"})
		return
	}
	if req.ImageData == "" || req.Filename == "" {
		writeJSON(w, http.StatusBadRequest, UploadResponse{Error: "Missing required fields: imageData, filename"})
		return
	}

	contentType := "image/jpeg"
	encoded := req.ImageData
	if m := dataURLPattern.FindStringSubmatch(req.ImageData); m != nil {
		contentType = m[1]
		encoded = req.ImageData[len(m[0]):]
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, UploadResponse{Error: "invalid base64 image data"})
		return
	}

	key := req.S3Key
	if key == "" {
		key = h.prefix + req.Filename
	}

	metadata := map[string]string{
		MetaWorkerID:        orUnknown(req.Metadata.WorkerID),
		MetaSessionID:       orUnknown(req.Metadata.SessionID),
		MetaOriginalCode:    orUnknown(req.Metadata.Code),
		MetaUploadTimestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if err := h.store.Put(r.Context(), key, bytes.NewReader(data), int64(len(data)), contentType, metadata); err != nil {
		h.logger.Error("upload function write failed", "key", key, "error", err)
		writeJSON(w, http.StatusInternalServerError, UploadResponse{Error: "Upload failed", Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{Success: true, Key: key, Location: key})
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
