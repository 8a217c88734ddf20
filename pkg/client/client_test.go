package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnn-ops/slurm-trainer-sidecar/pkg/api"
)

func TestSubmit(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/create", r.URL.Path)
		var spec api.JobSpec
		require.NoError(t, json.NewDecoder(r.Body).Decode(&spec))
		assert.Equal(t, "progsnn-train", spec.Name)
		require.NoError(t, json.NewEncoder(w).Encode(api.SubmitResponse{UID: "uid-1", JID: "1234"}))
	}))
	defer server.Close()

	resp, err := New(server.URL).Submit(context.Background(), api.JobSpec{Name: "progsnn-train"})
	require.NoError(t, err)
	assert.Equal(t, "uid-1", resp.UID)
	assert.Equal(t, "1234", resp.JID)
}

func TestSubmitErrorPropagatesBody(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("job name is mandatory"))
	}))
	defer server.Close()

	_, err := New(server.URL).Submit(context.Background(), api.JobSpec{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "job name is mandatory")
}

func TestStatus(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/status", r.URL.Path)
		var uids []string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&uids))
		assert.Equal(t, []string{"uid-1"}, uids)
		require.NoError(t, json.NewEncoder(w).Encode([]api.JobStatus{
			{UID: "uid-1", JID: "1234", Phase: api.PhaseRunning},
		}))
	}))
	defer server.Close()

	statuses, err := New(server.URL).Status(context.Background(), []string{"uid-1"})
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, api.PhaseRunning, statuses[0].Phase)
}

func TestCancel(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/delete", r.URL.Path)
		var req struct {
			UID string `json:"uid"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "uid-1", req.UID)
	}))
	defer server.Close()

	require.NoError(t, New(server.URL).Cancel(context.Background(), "uid-1"))
}

func TestLogs(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/getLogs", r.URL.Path)
		var req api.LogRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "train", req.StepName)
		w.Write([]byte("epoch 1\nepoch 2\n"))
	}))
	defer server.Close()

	var buf bytes.Buffer
	err := New(server.URL).Logs(context.Background(), api.LogRequest{UID: "uid-1", StepName: "train"}, &buf)
	require.NoError(t, err)
	assert.Equal(t, "epoch 1\nepoch 2\n", buf.String())
}

func TestHistory(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/history", r.URL.Path)
		assert.Equal(t, "snn", r.URL.Query().Get("experiment"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		require.NoError(t, json.NewEncoder(w).Encode([]api.HistoryEntry{
			{UID: "uid-1", JID: "1234", Experiment: "snn", Phase: api.PhaseCompleted},
		}))
	}))
	defer server.Close()

	entries, err := New(server.URL).History(context.Background(), "snn", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, api.PhaseCompleted, entries[0].Phase)
}
