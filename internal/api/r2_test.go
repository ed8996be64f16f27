package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectURL(t *testing.T) {
	c := NewR2Client("https://r2.example/", zerolog.Nop())
	assert.Equal(t, "https://r2.example", c.Endpoint())
	assert.Equal(t, "https://r2.example/job/input/package.zip", c.ObjectURL("job/input/package.zip"))
	assert.Equal(t, "https://r2.example/job/input/package.zip", c.ObjectURL("/job/input/package.zip"))
}

func TestCreateMultipartUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "mpu-create", r.URL.Query().Get("action"))
		assert.Equal(t, "/job/input/package.zip", r.URL.Path)
		assert.Equal(t, "tok", r.Header.Get("authentication"))
		_ = json.NewEncoder(w).Encode(map[string]string{"uploadId": "mpu-1"})
	}))
	defer srv.Close()

	c := NewR2Client(srv.URL, zerolog.Nop())
	id, err := c.CreateMultipartUpload(context.Background(), UserData{APIToken: "tok"}, "job/input/package.zip")
	require.NoError(t, err)
	assert.Equal(t, "mpu-1", id)
}

func TestCompleteMultipartUploadSortsParts(t *testing.T) {
	var got struct {
		Parts []PartETag `json:"parts"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "mpu-complete", r.URL.Query().Get("action"))
		assert.Equal(t, "mpu-1", r.URL.Query().Get("uploadId"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewR2Client(srv.URL, zerolog.Nop())
	parts := []PartETag{
		{PartNumber: 3, ETag: "c"},
		{PartNumber: 1, ETag: "a"},
		{PartNumber: 2, ETag: "b"},
	}
	err := c.CompleteMultipartUpload(context.Background(), UserData{}, "key", "mpu-1", parts)
	require.NoError(t, err)

	require.Len(t, got.Parts, 3)
	assert.Equal(t, []PartETag{
		{PartNumber: 1, ETag: "a"},
		{PartNumber: 2, ETag: "b"},
		{PartNumber: 3, ETag: "c"},
	}, got.Parts)

	// The caller's slice is untouched.
	assert.Equal(t, 3, parts[0].PartNumber)
}

func TestUploadPartReturnsETag(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "mpu-uploadpart", r.URL.Query().Get("action"))
		assert.Equal(t, "2", r.URL.Query().Get("partNumber"))
		assert.Equal(t, int64(5), r.ContentLength)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "hello", string(body))
		_ = json.NewEncoder(w).Encode(PartETag{PartNumber: 2, ETag: "abc"})
	}))
	defer srv.Close()

	c := NewR2Client(srv.URL, zerolog.Nop())
	part, err := c.UploadPart(context.Background(), UserData{}, "key", "mpu-1", 2, strings.NewReader("hello"), 5)
	require.NoError(t, err)
	assert.Equal(t, PartETag{PartNumber: 2, ETag: "abc"}, part)
}

func TestStatusErrorCarriesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such upload", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewR2Client(srv.URL, zerolog.Nop())
	err := c.AbortMultipartUpload(context.Background(), UserData{}, "key", "mpu-1")
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	assert.True(t, statusErr.Permanent())
	assert.Contains(t, statusErr.Body, "no such upload")
}

func TestDeleteObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "delete", r.URL.Query().Get("action"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewR2Client(srv.URL, zerolog.Nop())
	require.NoError(t, c.DeleteObject(context.Background(), UserData{}, "job/output/0001.png"))
}

func TestGetAddsActionQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "get", r.URL.Query().Get("action"))
		_, _ = w.Write([]byte("frame"))
	}))
	defer srv.Close()

	c := NewR2Client(srv.URL, zerolog.Nop())
	resp, err := c.Get(context.Background(), UserData{}, srv.URL+"/job/output/0001.png")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "frame", string(body))
}
