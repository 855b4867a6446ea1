package storage_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tomliptrot/handwriting-app/internal/storage"
)

func TestFunctionStore_PostsBase64Payload(t *testing.T) {
	var got storage.UploadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(storage.UploadResponse{Success: true, Key: got.S3Key})
	}))
	defer srv.Close()

	store := storage.NewFunctionStore(srv.URL)
	data := []byte("image bytes")
	err := store.Put(context.Background(), "images/worker7/ABC12345.jpg", bytes.NewReader(data), int64(len(data)), "image/png", map[string]string{
		storage.MetaWorkerID:     "worker7",
		storage.MetaSessionID:    "sess_worker7_1_abc",
		storage.MetaOriginalCode: "#ABC12345",
	})
	require.NoError(t, err)

	require.Equal(t, "images/worker7/ABC12345.jpg", got.S3Key)
	require.Equal(t, "ABC12345.jpg", got.Filename)
	require.True(t, strings.HasPrefix(got.ImageData, "data:image/png;base64,"))
	require.Equal(t, "worker7", got.Metadata.WorkerID)
	require.Equal(t, "#ABC12345", got.Metadata.Code)
}

func TestFunctionStore_ServerErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := storage.NewFunctionStore(srv.URL)
	err := store.Put(context.Background(), "k", bytes.NewReader([]byte("x")), 1, "image/jpeg", nil)
	require.Error(t, err)
}

func TestFunctionStore_RejectionFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(storage.UploadResponse{Success: false, Message: "bucket unavailable"})
	}))
	defer srv.Close()

	store := storage.NewFunctionStore(srv.URL)
	err := store.Put(context.Background(), "k", bytes.NewReader([]byte("x")), 1, "image/jpeg", nil)
	require.ErrorContains(t, err, "bucket unavailable")
}

func TestFunctionHandler_WritesThroughStore(t *testing.T) {
	ctx := context.Background()
	fsStore := newFSStore(t)
	handler := storage.NewFunctionHandler(fsStore, "images/", nil)

	body, _ := json.Marshal(storage.UploadRequest{
		ImageData: "data:image/jpeg;base64,aW1hZ2UgYnl0ZXM=",
		Filename:  "ABC12345.jpg",
		S3Key:     "images/worker7/ABC12345.jpg",
		Metadata:  storage.UploadMetadata{WorkerID: "worker7", SessionID: "sess1", Code: "#ABC12345"},
	})
	req := httptest.NewRequest(http.MethodPost, "/functions/upload-image", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp storage.UploadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.True(t, resp.Success)
	require.Equal(t, "images/worker7/ABC12345.jpg", resp.Key)

	data, err := fsStore.Get(ctx, "images/worker7/ABC12345.jpg")
	require.NoError(t, err)
	require.Equal(t, []byte("image bytes"), data)
}

func TestFunctionHandler_MissingFields(t *testing.T) {
	handler := storage.NewFunctionHandler(newFSStore(t), "images/", nil)

	body, _ := json.Marshal(storage.UploadRequest{Filename: "x.jpg"})
	req := httptest.NewRequest(http.MethodPost, "/functions/upload-image", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFunctionHandler_RejectsNonPost(t *testing.T) {
	handler := storage.NewFunctionHandler(newFSStore(t), "images/", nil)
	req := httptest.NewRequest(http.MethodGet, "/functions/upload-image", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
