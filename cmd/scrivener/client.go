package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const sessionHeader = "Mcp-Session-Id"

// client is a minimal MCP client for one CLI invocation: initialize, call
// tools, end the session.
type client struct {
	base      string
	http      *http.Client
	sessionID string
	nextID    int
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcReply struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func dial(addr string) (*client, error) {
	c := &client{
		base: "http://" + addr + "/mcp",
		http: &http.Client{Timeout: 30 * time.Second},
	}

	reply, header, err := c.post(rpcEnvelope{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "initialize",
		Params:  json.RawMessage(`{"protocolVersion":"2024-11-05","clientInfo":{"name":"scrivener-cli"}}`),
	}, "")
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", addr, err)
	}
	if reply.Error != nil {
		return nil, fmt.Errorf("initialize: %s", reply.Error.Message)
	}
	c.sessionID = header
	c.nextID = 2

	if _, _, err := c.post(rpcEnvelope{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	}, c.sessionID); err != nil {
		return nil, err
	}
	return c, nil
}

// Close ends the daemon-side session.
func (c *client) Close() {
	if c.sessionID == "" {
		return
	}
	req, err := http.NewRequest(http.MethodDelete, c.base, nil)
	if err != nil {
		return
	}
	req.Header.Set(sessionHeader, c.sessionID)
	if resp, err := c.http.Do(req); err == nil {
		resp.Body.Close()
	}
}

func (c *client) post(envelope rpcEnvelope, sessionID string) (*rpcReply, string, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, "", err
	}
	req, err := http.NewRequest(http.MethodPost, c.base, bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		return &rpcReply{}, resp.Header.Get(sessionHeader), nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return nil, "", fmt.Errorf("daemon returned HTTP %d", resp.StatusCode)
	}

	var reply rpcReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, "", fmt.Errorf("decode response: %w", err)
	}
	return &reply, resp.Header.Get(sessionHeader), nil
}

// callTool invokes one tool and returns the decoded JSON payload from its
// text content block.
func (c *client) callTool(name string, arguments map[string]any) (map[string]any, error) {
	params, err := json.Marshal(map[string]any{"name": name, "arguments": arguments})
	if err != nil {
		return nil, err
	}

	id := c.nextID
	c.nextID++
	reply, _, err := c.post(rpcEnvelope{
		JSONRPC: "2.0",
		ID:      id,
		Method:  "tools/call",
		Params:  params,
	}, c.sessionID)
	if err != nil {
		return nil, err
	}
	if reply.Error != nil {
		return nil, fmt.Errorf("%s: %s", name, reply.Error.Message)
	}

	var result struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}
	if err := json.Unmarshal(reply.Result, &result); err != nil {
		return nil, fmt.Errorf("decode tool result: %w", err)
	}
	if len(result.Content) == 0 {
		return nil, fmt.Errorf("%s returned no content", name)
	}
	if result.IsError {
		return nil, fmt.Errorf("%s: %s", name, result.Content[0].Text)
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].Text), &payload); err != nil {
		return nil, fmt.Errorf("decode tool payload: %w", err)
	}
	return payload, nil
}
