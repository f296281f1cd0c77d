package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"scrivener/internal/api"
	"scrivener/internal/entities"
	"scrivener/internal/logging"
	"scrivener/internal/queue"
	"scrivener/internal/testsupport"
	"scrivener/internal/worker"
)

type fakeWorker struct {
	mu       sync.Mutex
	running  bool
	restarts int
}

func (f *fakeWorker) Start(ctx context.Context) {
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
}

func (f *fakeWorker) Stop() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
}

func (f *fakeWorker) Restart(ctx context.Context) {
	f.mu.Lock()
	f.running = true
	f.restarts++
	f.mu.Unlock()
}

func (f *fakeWorker) Status() worker.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return worker.Status{Running: f.running}
}

func (f *fakeWorker) restartCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restarts
}

type fixture struct {
	ts     *httptest.Server
	server *Server
	store  *queue.Store
	worker *fakeWorker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Workflow.SSEKeepAliveInterval = 1
	store := testsupport.MustOpenStore(t, cfg)

	entityStore, err := entities.OpenFile(filepath.Join(t.TempDir(), "entities.json"))
	if err != nil {
		t.Fatalf("entities.OpenFile: %v", err)
	}

	fw := &fakeWorker{}
	server := NewServer(cfg, NewRegistry(), api.NewQueueService(cfg, store, logging.NewNop()), fw, entityStore, store, logging.NewNop())

	ts := httptest.NewServer(server)
	t.Cleanup(func() {
		ts.Close()
		server.Wait()
	})
	return &fixture{ts: ts, server: server, store: store, worker: fw}
}

func (f *fixture) post(t *testing.T, sessionID string, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, f.ts.URL, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	resp, err := f.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	return resp
}

func (f *fixture) rpc(t *testing.T, sessionID, method string, params any) *rpcResponse {
	t.Helper()
	encoded := []byte("{}")
	if params != nil {
		var err error
		encoded, err = json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
	}
	body := fmt.Sprintf(`{"jsonrpc":"2.0","id":1,"method":%q,"params":%s}`, method, encoded)

	resp := f.post(t, sessionID, body)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("%s returned HTTP %d", method, resp.StatusCode)
	}
	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return &decoded
}

func (f *fixture) initialize(t *testing.T) string {
	t.Helper()
	resp := f.post(t, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test"}}}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initialize returned HTTP %d", resp.StatusCode)
	}
	sessionID := resp.Header.Get(sessionHeader)
	if sessionID == "" {
		t.Fatal("initialize did not assign a session id")
	}

	notify := f.post(t, sessionID, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	notify.Body.Close()
	if notify.StatusCode != http.StatusAccepted {
		t.Fatalf("notifications/initialized returned HTTP %d", notify.StatusCode)
	}
	return sessionID
}

func resultMap(t *testing.T, resp *rpcResponse) map[string]any {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("unexpected rpc error: %+v", resp.Error)
	}
	encoded, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("re-encode result: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(encoded, &m); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	return m
}

// toolPayload unwraps the text content block of a tools/call result.
func toolPayload(t *testing.T, resp *rpcResponse) (map[string]any, bool) {
	t.Helper()
	m := resultMap(t, resp)
	isError, _ := m["isError"].(bool)
	content, ok := m["content"].([]any)
	if !ok || len(content) == 0 {
		t.Fatalf("tool result missing content: %v", m)
	}
	block := content[0].(map[string]any)
	text, _ := block["text"].(string)
	if isError {
		return map[string]any{"error": text}, true
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		t.Fatalf("decode tool payload %q: %v", text, err)
	}
	return payload, false
}

func TestInitializeAssignsUniqueSessions(t *testing.T) {
	f := newFixture(t)

	first := f.initialize(t)
	second := f.initialize(t)
	if first == second {
		t.Fatalf("sessions must be unique, both got %s", first)
	}
	if f.server.Registry().Count() != 2 {
		t.Fatalf("expected 2 live sessions, got %d", f.server.Registry().Count())
	}
}

func TestRequestsWithoutSessionRejected(t *testing.T) {
	f := newFixture(t)

	// A missing header and an unknown id are distinct client errors.
	resp := f.post(t, "", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing header: expected 400, got %d", resp.StatusCode)
	}

	resp = f.post(t, "not-a-session", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session: expected 404, got %d", resp.StatusCode)
	}
}

func TestMalformedBodyIsParseError(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "", `{"jsonrpc":`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if decoded.Error == nil || decoded.Error.Code != codeParseError {
		t.Fatalf("expected parse error, got %+v", decoded.Error)
	}
}

func TestUnknownMethod(t *testing.T) {
	f := newFixture(t)
	sessionID := f.initialize(t)

	resp := f.rpc(t, sessionID, "frobnicate", nil)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method-not-found, got %+v", resp.Error)
	}
}

func TestToolsListNamesEveryTool(t *testing.T) {
	f := newFixture(t)
	sessionID := f.initialize(t)

	m := resultMap(t, f.rpc(t, sessionID, "tools/list", nil))
	tools, ok := m["tools"].([]any)
	if !ok {
		t.Fatalf("tools/list shape wrong: %v", m)
	}
	names := make(map[string]bool)
	for _, raw := range tools {
		tool := raw.(map[string]any)
		names[tool["name"].(string)] = true
	}
	for _, want := range []string{
		"queue_status", "queue_lookup", "queue_retry", "queue_cancel",
		"worker_status", "worker_start", "worker_stop", "worker_restart",
		"entity_update", "transcript_review",
	} {
		if !names[want] {
			t.Fatalf("tools/list missing %s (got %v)", want, names)
		}
	}
}

func TestQueueToolsEndToEnd(t *testing.T) {
	f := newFixture(t)
	sessionID := f.initialize(t)
	ctx := context.Background()

	item := testsupport.NewUpload(t, f.store, "/u/a.wav", "")
	if err := f.store.MarkTranscribing(ctx, item.ID); err != nil {
		t.Fatalf("MarkTranscribing: %v", err)
	}
	if err := f.store.MarkFailed(ctx, item.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	status, isErr := toolPayload(t, f.rpc(t, sessionID, "tools/call", map[string]any{
		"name": "queue_status", "arguments": map[string]any{},
	}))
	if isErr {
		t.Fatalf("queue_status errored: %v", status)
	}
	counts := status["counts"].(map[string]any)
	if counts["errored"].(float64) != 1 {
		t.Fatalf("expected one errored item, got %v", counts)
	}

	lookup, isErr := toolPayload(t, f.rpc(t, sessionID, "tools/call", map[string]any{
		"name": "queue_lookup", "arguments": map[string]any{"id": item.ID[:8]},
	}))
	if isErr || lookup["found"] != true {
		t.Fatalf("queue_lookup failed: %v", lookup)
	}

	retry, isErr := toolPayload(t, f.rpc(t, sessionID, "tools/call", map[string]any{
		"name": "queue_retry", "arguments": map[string]any{"id": item.ID},
	}))
	if isErr || retry["ok"] != true {
		t.Fatalf("queue_retry failed: %v", retry)
	}

	cancel, isErr := toolPayload(t, f.rpc(t, sessionID, "tools/call", map[string]any{
		"name": "queue_cancel", "arguments": map[string]any{"id": item.ID},
	}))
	if isErr || cancel["ok"] != true {
		t.Fatalf("queue_cancel failed: %v", cancel)
	}

	after, err := f.store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if after.Status != queue.StatusError || after.ErrorMessage != queue.CancelReason {
		t.Fatalf("cancel not applied: %+v", after)
	}
}

func TestRefusedActionIsInBandResult(t *testing.T) {
	f := newFixture(t)
	sessionID := f.initialize(t)

	item := testsupport.NewUpload(t, f.store, "/u/a.wav", "")

	// Retrying an uploaded item is refused but not a protocol error.
	payload, isErr := toolPayload(t, f.rpc(t, sessionID, "tools/call", map[string]any{
		"name": "queue_retry", "arguments": map[string]any{"id": item.ID},
	}))
	if isErr {
		t.Fatalf("refusal should not be a tool error: %v", payload)
	}
	reason, _ := payload["reason"].(string)
	if payload["ok"] != false || reason == "" {
		t.Fatalf("expected refusal with reason, got %v", payload)
	}
}

func TestUnknownToolIsProtocolError(t *testing.T) {
	f := newFixture(t)
	sessionID := f.initialize(t)

	resp := f.rpc(t, sessionID, "tools/call", map[string]any{
		"name": "mystery_tool", "arguments": map[string]any{},
	})
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid-params error, got %+v", resp.Error)
	}
}

func TestWorkerTools(t *testing.T) {
	f := newFixture(t)
	sessionID := f.initialize(t)

	payload, _ := toolPayload(t, f.rpc(t, sessionID, "tools/call", map[string]any{
		"name": "worker_start", "arguments": map[string]any{},
	}))
	if payload["running"] != true {
		t.Fatalf("worker_start: %v", payload)
	}

	payload, _ = toolPayload(t, f.rpc(t, sessionID, "tools/call", map[string]any{
		"name": "worker_stop", "arguments": map[string]any{},
	}))
	if payload["running"] != false {
		t.Fatalf("worker_stop: %v", payload)
	}

	toolPayload(t, f.rpc(t, sessionID, "tools/call", map[string]any{
		"name": "worker_restart", "arguments": map[string]any{},
	}))
	if f.worker.restartCount() != 1 {
		t.Fatalf("expected one restart, got %d", f.worker.restartCount())
	}
}

func TestResourcesReadAndList(t *testing.T) {
	f := newFixture(t)
	sessionID := f.initialize(t)
	ctx := context.Background()

	toolPayload(t, f.rpc(t, sessionID, "tools/call", map[string]any{
		"name": "entity_update",
		"arguments": map[string]any{
			"type": "person", "name": "alice",
			"attributes": map[string]string{"role": "lead"},
		},
	}))

	item := testsupport.NewUpload(t, f.store, "/u/a.wav", "")
	if err := f.store.MarkTranscribing(ctx, item.ID); err != nil {
		t.Fatalf("MarkTranscribing: %v", err)
	}
	if err := f.store.CompleteProcessing(ctx, item.ID, queue.StatusEnhanced, "raw", "# Notes", ""); err != nil {
		t.Fatalf("CompleteProcessing: %v", err)
	}

	list := resultMap(t, f.rpc(t, sessionID, "resources/list", nil))
	resources := list["resources"].([]any)
	if len(resources) != 2 {
		t.Fatalf("expected entity and transcript resources, got %v", resources)
	}

	read := resultMap(t, f.rpc(t, sessionID, "resources/read", map[string]any{
		"uri": "entity://person/alice",
	}))
	contents := read["contents"].([]any)
	text := contents[0].(map[string]any)["text"].(string)
	if !strings.Contains(text, "lead") {
		t.Fatalf("entity read missing attributes: %s", text)
	}

	read = resultMap(t, f.rpc(t, sessionID, "resources/read", map[string]any{
		"uri": TranscriptURI(item.ID),
	}))
	contents = read["contents"].([]any)
	if contents[0].(map[string]any)["text"] != "# Notes" {
		t.Fatalf("transcript read wrong: %v", contents)
	}

	resp := f.rpc(t, sessionID, "resources/read", map[string]any{
		"uri": "entity://person/nobody",
	})
	if resp.Error == nil || resp.Error.Code != codeResourceNotFound {
		t.Fatalf("expected resource-not-found, got %+v", resp.Error)
	}
}

func TestDeleteEndsSession(t *testing.T) {
	f := newFixture(t)
	sessionID := f.initialize(t)

	req, err := http.NewRequest(http.MethodDelete, f.ts.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set(sessionHeader, sessionID)
	resp, err := f.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	after := f.post(t, sessionID, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	after.Body.Close()
	if after.StatusCode != http.StatusNotFound {
		t.Fatalf("ended session should be rejected, got %d", after.StatusCode)
	}

	again, err := f.ts.Client().Do(req.Clone(context.Background()))
	if err != nil {
		t.Fatalf("second DELETE: %v", err)
	}
	again.Body.Close()
	if again.StatusCode != http.StatusNotFound {
		t.Fatalf("second DELETE should 404, got %d", again.StatusCode)
	}
}

// openStream opens the SSE stream and feeds each data payload to the
// returned channel until the context ends.
func openStream(t *testing.T, f *fixture, sessionID string) (<-chan string, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.ts.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set(sessionHeader, sessionID)
	resp, err := f.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("stream returned HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		resp.Body.Close()
		t.Fatalf("stream content type %q", ct)
	}

	events := make(chan string, 32)
	go func() {
		defer resp.Body.Close()
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				events <- data
			}
		}
	}()
	return events, cancel
}

func waitForEvent(t *testing.T, events <-chan string, substr string) string {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case event, open := <-events:
			if !open {
				t.Fatalf("stream closed before %q arrived", substr)
			}
			if strings.Contains(event, substr) {
				return event
			}
		case <-deadline:
			t.Fatalf("no event containing %q within deadline", substr)
		}
	}
}

func TestStreamRequiresSession(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodGet, f.ts.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := f.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing header: expected 400, got %d", resp.StatusCode)
	}

	req.Header.Set(sessionHeader, "not-a-session")
	resp, err = f.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown session: expected 404, got %d", resp.StatusCode)
	}
}

func TestSubscriptionFanOut(t *testing.T) {
	f := newFixture(t)
	subscriber := f.initialize(t)
	bystander := f.initialize(t)

	subEvents, cancelSub := openStream(t, f, subscriber)
	defer cancelSub()
	byEvents, cancelBy := openStream(t, f, bystander)
	defer cancelBy()

	waitForEvent(t, subEvents, "sessionId")
	waitForEvent(t, byEvents, "sessionId")

	uri := EntityURI("person", "alice")
	resp := f.rpc(t, subscriber, "resources/subscribe", map[string]any{"uri": uri})
	if resp.Error != nil {
		t.Fatalf("subscribe: %+v", resp.Error)
	}

	toolPayload(t, f.rpc(t, subscriber, "tools/call", map[string]any{
		"name":      "entity_update",
		"arguments": map[string]any{"type": "person", "name": "alice"},
	}))

	event := waitForEvent(t, subEvents, "resources/updated")
	if !strings.Contains(event, uri) {
		t.Fatalf("notification missing uri: %s", event)
	}

	// The bystander never subscribed; nothing but the marker may arrive.
	select {
	case extra := <-byEvents:
		if strings.Contains(extra, "resources/updated") {
			t.Fatalf("unsubscribed session received notification: %s", extra)
		}
	case <-time.After(300 * time.Millisecond):
	}
}

func TestFanOutReadsCallArguments(t *testing.T) {
	f := newFixture(t)
	sessionID := f.initialize(t)

	item := testsupport.NewUpload(t, f.store, "/u/a.wav", "")

	events, cancel := openStream(t, f, sessionID)
	defer cancel()
	waitForEvent(t, events, "sessionId")

	uri := TranscriptURI(item.ID)
	f.rpc(t, sessionID, "resources/subscribe", map[string]any{"uri": uri})

	// Retrying an uploaded item is refused in-band, but the notification
	// is keyed on the call's arguments, not its outcome.
	payload, isErr := toolPayload(t, f.rpc(t, sessionID, "tools/call", map[string]any{
		"name": "queue_retry", "arguments": map[string]any{"id": item.ID},
	}))
	if isErr || payload["ok"] != false {
		t.Fatalf("expected in-band refusal, got %v", payload)
	}

	event := waitForEvent(t, events, "resources/updated")
	if !strings.Contains(event, uri) {
		t.Fatalf("notification missing uri: %s", event)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	f := newFixture(t)
	sessionID := f.initialize(t)

	events, cancel := openStream(t, f, sessionID)
	defer cancel()
	waitForEvent(t, events, "sessionId")

	uri := EntityURI("term", "latency")
	f.rpc(t, sessionID, "resources/subscribe", map[string]any{"uri": uri})
	f.rpc(t, sessionID, "resources/unsubscribe", map[string]any{"uri": uri})

	toolPayload(t, f.rpc(t, sessionID, "tools/call", map[string]any{
		"name":      "entity_update",
		"arguments": map[string]any{"type": "term", "name": "latency"},
	}))

	select {
	case event := <-events:
		if strings.Contains(event, "resources/updated") {
			t.Fatalf("unsubscribed session received notification: %s", event)
		}
	case <-time.After(300 * time.Millisecond):
	}

	// Subscribing again restores delivery.
	f.rpc(t, sessionID, "resources/subscribe", map[string]any{"uri": uri})
	toolPayload(t, f.rpc(t, sessionID, "tools/call", map[string]any{
		"name":      "entity_update",
		"arguments": map[string]any{"type": "term", "name": "latency"},
	}))
	waitForEvent(t, events, "resources/updated")
}

func TestKeepAliveComments(t *testing.T) {
	f := newFixture(t)
	sessionID := f.initialize(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.ts.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set(sessionHeader, sessionID)
	resp, err := f.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	scanner := bufio.NewScanner(resp.Body)
	deadline := time.Now().Add(3 * time.Second)
	for scanner.Scan() && time.Now().Before(deadline) {
		buf.WriteString(scanner.Text())
		buf.WriteByte('\n')
		if strings.Contains(buf.String(), ": keep-alive") {
			return
		}
	}
	t.Fatalf("no keep-alive within deadline, stream:\n%s", buf.String())
}
