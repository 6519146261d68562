package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandboxagent/internal/agent/agenttest"
	"sandboxagent/internal/agent/domain"
	"sandboxagent/internal/agent/ports"
	"sandboxagent/internal/agent/runner"
	"sandboxagent/internal/logging"
	"sandboxagent/internal/observability"
	"sandboxagent/internal/server/app"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	service *app.SessionService
	server  *httptest.Server
}

func newHarness(t *testing.T, collaborator *agenttest.Collaborator, metrics *observability.MetricsCollector) *harness {
	t.Helper()
	registry, err := app.NewSessionRegistry(4)
	require.NoError(t, err)
	agent := runner.New(collaborator, runner.Options{Model: "claude-test"}, runner.WithLogger(logging.Nop()))
	publisher := app.NewStreamPublisher(app.DefaultFilterPolicy(), app.StreamConfig{PollInterval: time.Millisecond}, nil, nil)
	service := app.NewSessionService(context.Background(), registry, agent, publisher, app.SessionServiceConfig{}, app.WithLogger(logging.Nop()))

	router := NewRouter(RouterDeps{
		Service:           service,
		Health:            app.NewHealthChecker(app.NewSessionProbe(registry)),
		Metrics:           metrics,
		Logger:            logging.Nop(),
		Version:           "test",
		HeartbeatInterval: 20 * time.Millisecond,
	})
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = service.Wait(ctx)
	})
	return &harness{service: service, server: server}
}

func (h *harness) generate(t *testing.T, prompt, workdir string) *http.Response {
	t.Helper()
	body, err := json.Marshal(map[string]string{"prompt": prompt, "workdir": workdir})
	require.NoError(t, err)
	resp, err := http.Post(h.server.URL+"/generate", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func readSSE(t *testing.T, r io.Reader) []domain.Event {
	t.Helper()
	var events []domain.Event
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event domain.Event
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		events = append(events, event)
	}
	return events
}

func scenarioSteps() []agenttest.Step {
	write := ports.ToolHookInput{ToolUseID: "tu_1", ToolName: "Write", ToolInput: map[string]any{"file_path": "index.html", "content": "<h1>hi</h1>"}}
	read := ports.ToolHookInput{ToolUseID: "tu_2", ToolName: "Read", ToolInput: map[string]any{"file_path": "index.html"}}
	return []agenttest.Step{
		agenttest.Text("Creating the page."),
		agenttest.Pre(write),
		agenttest.Post(write),
		agenttest.Pre(read),
		agenttest.Post(read),
		agenttest.Message(ports.ResultMessage{Subtype: "success", NumTurns: 1}),
	}
}

func TestGenerateAndStreamOverSSE(t *testing.T) {
	h := newHarness(t, agenttest.New(scenarioSteps()...), nil)

	resp := h.generate(t, "build a landing page", t.TempDir())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	generated := decodeBody[generateResponse](t, resp)
	assert.True(t, generated.Success)
	assert.Regexp(t, `^sess-[0-9a-f]{12}$`, generated.SessionID)

	stream, err := http.Get(h.server.URL + "/stream")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, stream.StatusCode)
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", stream.Header.Get("Cache-Control"))
	assert.Equal(t, "no", stream.Header.Get("X-Accel-Buffering"))

	defer stream.Body.Close()
	events := readSSE(t, stream.Body)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.KindStarted, events[0].Kind())
	assert.Equal(t, domain.KindCompleted, events[len(events)-1].Kind())

	kinds := make([]domain.EventKind, 0, len(events))
	for _, event := range events {
		kinds = append(kinds, event.Kind())
	}
	assert.Contains(t, kinds, domain.KindFileWrite)
	assert.Contains(t, kinds, domain.KindResult)
	assert.NotContains(t, kinds, domain.KindFileRead)
	assert.NotContains(t, kinds, domain.KindToolEnd)

	summary := decodeBody[app.SessionSummary](t, mustGet(t, h.server.URL+"/sessions/"+generated.SessionID))
	assert.Equal(t, app.SessionCompleted, summary.Status)
}

func mustGet(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	return resp
}

func TestGenerateValidation(t *testing.T) {
	h := newHarness(t, agenttest.New(), nil)

	tests := []struct {
		name    string
		prompt  string
		workdir string
	}{
		{name: "nonexistent workdir", prompt: "p", workdir: "/nonexistent/sandbox-agent-test"},
		{name: "empty prompt", prompt: "", workdir: t.TempDir()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.generate(t, tt.prompt, tt.workdir)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decodeBody[apiErrorResponse](t, resp)
			assert.NotEmpty(t, body.Error)
			assert.NotEmpty(t, body.Details)
		})
	}

	resp, err := http.Post(h.server.URL+"/generate", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestEndpointsWithoutSession(t *testing.T) {
	h := newHarness(t, agenttest.New(), nil)

	for _, path := range []string{"/stream", "/sessions/current", "/sessions/sess-000000000000"} {
		t.Run(path, func(t *testing.T) {
			resp := mustGet(t, h.server.URL+path)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		})
	}

	resp, err := http.Post(h.server.URL+"/deploy", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	_, wsResp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(h.server.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, wsResp)
	assert.Equal(t, http.StatusNotFound, wsResp.StatusCode)
}

func TestRootAndHealth(t *testing.T) {
	h := newHarness(t, agenttest.New(), nil)

	root := decodeBody[map[string]any](t, mustGet(t, h.server.URL+"/"))
	assert.Equal(t, "test", root["version"])
	assert.Contains(t, root["endpoints"], "POST /generate")

	health := decodeBody[healthResponse](t, mustGet(t, h.server.URL+"/health"))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "claude-test", health.Model)
	assert.GreaterOrEqual(t, health.Uptime, 0.0)
	require.Len(t, health.Components, 1)
	assert.Equal(t, "session", health.Components[0].Name)

	metrics := mustGet(t, h.server.URL+"/metrics")
	metrics.Body.Close()
	assert.Equal(t, http.StatusNotFound, metrics.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	collector, err := observability.NewMetricsCollector(observability.MetricsConfig{Enabled: true})
	require.NoError(t, err)
	h := newHarness(t, agenttest.New(), collector)

	resp := mustGet(t, h.server.URL+"/metrics")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSSEHeartbeat(t *testing.T) {
	gate := make(chan struct{})
	h := newHarness(t, agenttest.New(agenttest.Gate(gate), agenttest.Text("done")), nil)

	resp := h.generate(t, "p", t.TempDir())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	stream := mustGet(t, h.server.URL+"/stream")
	defer stream.Body.Close()
	reader := bufio.NewReader(stream.Body)
	deadline := time.Now().Add(5 * time.Second)
	sawHeartbeat := false
	for time.Now().Before(deadline) && !sawHeartbeat {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		sawHeartbeat = strings.HasPrefix(line, ": heartbeat")
	}
	assert.True(t, sawHeartbeat)

	close(gate)
	rest := readSSE(t, reader)
	require.NotEmpty(t, rest)
	assert.Equal(t, domain.KindCompleted, rest[len(rest)-1].Kind())
}

func TestWebSocketStream(t *testing.T) {
	h := newHarness(t, agenttest.New(scenarioSteps()...), nil)

	resp := h.generate(t, "p", t.TempDir())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(h.server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var kinds []domain.EventKind
	for {
		var event domain.Event
		err := conn.ReadJSON(&event)
		if err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		kinds = append(kinds, event.Kind())
	}
	require.NotEmpty(t, kinds)
	assert.Equal(t, domain.KindStarted, kinds[0])
	assert.Equal(t, domain.KindCompleted, kinds[len(kinds)-1])
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{app.ValidationError("bad"), http.StatusBadRequest},
		{app.NotFoundError("gone"), http.StatusNotFound},
		{app.ConflictError("busy"), http.StatusConflict},
		{app.UnavailableError("off", nil), http.StatusServiceUnavailable},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusForError(tt.err), tt.err.Error())
	}
}

func TestCORSPreflight(t *testing.T) {
	router := NewRouter(RouterDeps{Service: nil, Logger: logging.Nop()})
	req := httptest.NewRequest(http.MethodOptions, "/generate", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

// panickingService has an active session whose stream panics.
type panickingService struct {
	session *app.Session
}

func (s *panickingService) Start(context.Context, app.StartRequest) (*app.Session, error) {
	return s.session, nil
}
func (s *panickingService) ActiveSession() (*app.Session, error) { return s.session, nil }
func (s *panickingService) Stream(context.Context, *app.Session, app.EmitFunc) error {
	panic("publisher bug")
}
func (s *panickingService) Current() (app.SessionSummary, error) { return s.session.Summary(), nil }
func (s *panickingService) Get(string) (app.SessionSummary, error) {
	return s.session.Summary(), nil
}
func (s *panickingService) Recent() []app.SessionSummary             { return nil }
func (s *panickingService) Deploy(context.Context) (string, error) { return "", nil }
func (s *panickingService) Model() string                            { return "claude-test" }

func TestStreamPanicEndsRequest(t *testing.T) {
	service := &panickingService{session: app.NewSession("sess-000000000001", "p", "/w", time.Now())}
	router := NewRouter(RouterDeps{Service: service, Logger: logging.Nop(), HeartbeatInterval: time.Hour})
	server := httptest.NewServer(router)
	defer server.Close()

	t.Run("sse", func(t *testing.T) {
		done := make(chan struct{})
		go func() {
			defer close(done)
			resp, err := http.Get(server.URL + "/stream")
			if assert.NoError(t, err) {
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("SSE request did not finish after the stream panicked")
		}
	})

	t.Run("ws", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
		require.NoError(t, err)
		defer conn.Close()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

		_, _, err = conn.ReadMessage()
		require.Error(t, err)
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
	})
}
