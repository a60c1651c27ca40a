package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurkanbulca/taskassign/internal/models"
)

func TestAPIClient_SendsTokenAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/tasks", r.URL.Path)
		assert.Equal(t, "in progress", r.URL.Query().Get("status"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"tasks": []map[string]interface{}{{"id": "t1", "title": "Report", "status": "in progress", "version": 2}},
			"total": 1,
		})
	}))
	defer srv.Close()

	res, err := NewAPIClient(srv.URL, "tok").ListTasks("in progress")
	require.NoError(t, err)
	require.Len(t, res.Tasks, 1)
	assert.Equal(t, models.StatusInProgress, res.Tasks[0].Status)
	assert.Equal(t, 2, res.Tasks[0].Version)
}

func TestAPIClient_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "completed", body["status"])
		assert.EqualValues(t, 3, body["version"])

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"conflict","message":"task was modified by another request"}`))
	}))
	defer srv.Close()

	_, err := NewAPIClient(srv.URL, "tok").UpdateStatus("t1", "completed", 3)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "conflict", apiErr.Code)
}

func TestRenderTasks(t *testing.T) {
	var buf bytes.Buffer
	renderTasks(&buf, []*models.Task{{ID: "t1", Title: "Report", Status: models.StatusNew, Priority: models.PriorityHigh}})

	out := buf.String()
	assert.Contains(t, out, "TITLE")
	assert.Contains(t, out, "Report")
	assert.Contains(t, out, "high")
}
