package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandboxagent/internal/agent/domain"
)

func init() {
	color.NoColor = true
}

func sseServer(t *testing.T, events ...domain.Event) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": heartbeat\n\n")
		for _, event := range events {
			payload, err := json.Marshal(event)
			require.NoError(t, err)
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
	})
	mux.HandleFunc("/generate", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["prompt"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"Invalid request","details":"prompt is required"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"session_id":"sess-0123456789ab"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func sampleEvents() []domain.Event {
	ts := time.Unix(1700000000, 0)
	return []domain.Event{
		domain.NewStartedEvent("claude-test", "build", "/project", ts),
		domain.NewThinkingEvent("planning the layout", ts),
		domain.NewTextEvent("Creating the page.", ts),
		domain.NewFileWriteEvent("index.html", 11, ts),
		domain.NewCompletedEvent(1500*time.Millisecond, ts),
	}
}

func TestWatchHidesQuietKinds(t *testing.T) {
	server := sseServer(t, sampleEvents()...)

	var out bytes.Buffer
	require.NoError(t, watchStream(context.Background(), &out, &watchOptions{server: server.URL}))

	text := out.String()
	assert.Contains(t, text, "started model=claude-test workdir=/project")
	assert.Contains(t, text, "Creating the page.")
	assert.Contains(t, text, "write index.html (11 bytes)")
	assert.Contains(t, text, "completed in 1500ms")
	assert.NotContains(t, text, "planning the layout")
}

func TestWatchAllPrintsEverything(t *testing.T) {
	server := sseServer(t, sampleEvents()...)

	var out bytes.Buffer
	require.NoError(t, watchStream(context.Background(), &out, &watchOptions{server: server.URL, all: true}))
	assert.Contains(t, out.String(), "planning the layout")
}

func TestWatchReportsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"No active session","details":"no active session: not found"}`))
	}))
	defer server.Close()

	err := watchStream(context.Background(), &bytes.Buffer{}, &watchOptions{server: server.URL})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No active session")
}

func TestRunCommand(t *testing.T) {
	server := sseServer(t, sampleEvents()...)

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"run", "--server", server.URL, "build", "a", "page"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "session sess-0123456789ab")
	assert.Contains(t, out.String(), "completed")
}

func TestStartGenerationError(t *testing.T) {
	server := sseServer(t)
	_, err := startGeneration(context.Background(), server.URL, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prompt is required")
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "Version: dev\n", out.String())
}

func TestConfigShowMasksSecrets(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("ANTHROPIC_AUTH_TOKEN", "sk-ant-0123456789abcdef")

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"config", "show"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "port: 8000")
	assert.NotContains(t, out.String(), "sk-ant-0123456789abcdef")
}
