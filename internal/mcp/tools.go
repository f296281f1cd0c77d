package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"scrivener/internal/entities"
	"scrivener/internal/logging"
	"scrivener/internal/queue"
)

// toolDescriptor is the tools/list entry shape.
type toolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func toolDescriptors() []toolDescriptor {
	idProp := map[string]any{"type": "string", "description": "Item id or unambiguous prefix"}
	return []toolDescriptor{
		{
			Name:        "queue_status",
			Description: "Summarize the queue: pending, processing, and recently concluded items",
			InputSchema: objectSchema(map[string]any{}),
		},
		{
			Name:        "queue_lookup",
			Description: "Fetch one queue item with its status history",
			InputSchema: objectSchema(map[string]any{"id": idProp}, "id"),
		},
		{
			Name:        "queue_retry",
			Description: "Return an errored item to the queue for another attempt",
			InputSchema: objectSchema(map[string]any{"id": idProp}, "id"),
		},
		{
			Name:        "queue_cancel",
			Description: "Cancel a pending or processing item; hard removes it entirely",
			InputSchema: objectSchema(map[string]any{
				"id":   idProp,
				"hard": map[string]any{"type": "boolean", "description": "Delete the item instead of parking it in error"},
			}, "id"),
		},
		{
			Name:        "worker_status",
			Description: "Report the background scanner's state and counters",
			InputSchema: objectSchema(map[string]any{}),
		},
		{
			Name:        "worker_start",
			Description: "Start the background scanner",
			InputSchema: objectSchema(map[string]any{}),
		},
		{
			Name:        "worker_stop",
			Description: "Stop the background scanner after the in-flight item finishes",
			InputSchema: objectSchema(map[string]any{}),
		},
		{
			Name:        "worker_restart",
			Description: "Restart the background scanner",
			InputSchema: objectSchema(map[string]any{}),
		},
		{
			Name:        "entity_update",
			Description: "Create or update a shared context entity (person, project, term, company)",
			InputSchema: objectSchema(map[string]any{
				"type": map[string]any{"type": "string", "enum": []string{
					entities.TypePerson, entities.TypeProject, entities.TypeTerm, entities.TypeCompany,
				}},
				"name":       map[string]any{"type": "string"},
				"attributes": map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "string"}},
			}, "type", "name"),
		},
		{
			Name:        "transcript_review",
			Description: "Advance a transcript through review: reviewed, in_progress, closed, archived",
			InputSchema: objectSchema(map[string]any{
				"id": idProp,
				"action": map[string]any{"type": "string", "enum": []string{
					string(queue.StatusReviewed), string(queue.StatusInProgress),
					string(queue.StatusClosed), string(queue.StatusArchived),
				}},
			}, "id", "action"),
		},
	}
}

func (s *Server) handleToolCall(ctx context.Context, session *Session, req *rpcRequest) *rpcResponse {
	var params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return errorResponse(req.ID, codeInvalidParams, "tool name is required")
	}

	s.logger.Info("tool call",
		logging.String(logging.FieldSessionID, session.ID),
		logging.String(logging.FieldTool, params.Name))

	result, err := s.callTool(ctx, params.Name, params.Arguments)
	if err != nil {
		if err == errUnknownTool {
			return errorResponse(req.ID, codeInvalidParams, fmt.Sprintf("unknown tool %q", params.Name))
		}
		// Execution failures are in-band tool results, not protocol errors.
		return resultResponse(req.ID, toolError(err))
	}

	s.fanOut(params.Name, params.Arguments)
	return resultResponse(req.ID, toolResult(result))
}

var errUnknownTool = fmt.Errorf("unknown tool")

func (s *Server) callTool(ctx context.Context, name string, arguments json.RawMessage) (any, error) {
	switch name {
	case "queue_status":
		return s.queueSvc.Status(ctx)
	case "queue_lookup":
		id, err := stringArg(arguments, "id")
		if err != nil {
			return nil, err
		}
		return s.queueSvc.Lookup(ctx, id)
	case "queue_retry":
		id, err := stringArg(arguments, "id")
		if err != nil {
			return nil, err
		}
		return s.queueSvc.Retry(ctx, id)
	case "queue_cancel":
		var args struct {
			ID   string `json:"id"`
			Hard bool   `json:"hard"`
		}
		if err := json.Unmarshal(arguments, &args); err != nil || args.ID == "" {
			return nil, fmt.Errorf("id is required")
		}
		return s.queueSvc.Cancel(ctx, args.ID, args.Hard)
	case "worker_status":
		return s.scanner.Status(), nil
	case "worker_start":
		s.scanner.Start(context.Background())
		return s.scanner.Status(), nil
	case "worker_stop":
		s.scanner.Stop()
		return s.scanner.Status(), nil
	case "worker_restart":
		s.scanner.Restart(context.Background())
		return s.scanner.Status(), nil
	case "entity_update":
		var args struct {
			Type       string            `json:"type"`
			Name       string            `json:"name"`
			Attributes map[string]string `json:"attributes"`
		}
		if err := json.Unmarshal(arguments, &args); err != nil {
			return nil, fmt.Errorf("invalid entity arguments")
		}
		return s.entities.Upsert(entities.Entity{
			Type:       args.Type,
			Name:       args.Name,
			Attributes: args.Attributes,
		})
	case "transcript_review":
		var args struct {
			ID     string `json:"id"`
			Action string `json:"action"`
		}
		if err := json.Unmarshal(arguments, &args); err != nil || args.ID == "" {
			return nil, fmt.Errorf("id is required")
		}
		to, ok := queue.ParseStatus(args.Action)
		if !ok {
			return nil, fmt.Errorf("invalid action %q", args.Action)
		}
		switch to {
		case queue.StatusReviewed, queue.StatusInProgress, queue.StatusClosed, queue.StatusArchived:
		default:
			return nil, fmt.Errorf("action %q is not a review transition", args.Action)
		}
		return s.queueSvc.Advance(ctx, args.ID, to)
	default:
		return nil, errUnknownTool
	}
}

func stringArg(arguments json.RawMessage, key string) (string, error) {
	var args map[string]string
	if err := json.Unmarshal(arguments, &args); err != nil || args[key] == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return args[key], nil
}

// toolResult wraps a handler result as MCP tool content: one text block
// holding the JSON-encoded payload.
func toolResult(payload any) map[string]any {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return toolError(fmt.Errorf("encode tool result: %w", err))
	}
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": string(encoded)}},
	}
}

func toolError(err error) map[string]any {
	return map[string]any{
		"content": []map[string]any{{"type": "text", "text": err.Error()}},
		"isError": true,
	}
}
