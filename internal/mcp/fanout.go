package mcp

import (
	"encoding/json"

	"scrivener/internal/entities"
	"scrivener/internal/logging"
)

// mutationRule maps a tool to the resource URIs it may have touched. The
// extractor reads the call's raw arguments; the handler result never feeds
// fan-out, so subscribers hear about every attempted mutation of a URI.
type mutationRule struct {
	tool    string
	touched func(arguments json.RawMessage) []string
}

var mutationRules = []mutationRule{
	{tool: "entity_update", touched: entityTouched},
	{tool: "queue_retry", touched: itemTouched},
	{tool: "queue_cancel", touched: itemTouched},
	{tool: "transcript_review", touched: itemTouched},
}

func entityTouched(arguments json.RawMessage) []string {
	var args struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil {
		return nil
	}
	entity, err := entities.Normalize(entities.Entity{Type: args.Type, Name: args.Name})
	if err != nil {
		return nil
	}
	return []string{EntityURI(entity.Type, entity.Name)}
}

func itemTouched(arguments json.RawMessage) []string {
	var args struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(arguments, &args); err != nil || args.ID == "" {
		return nil
	}
	return []string{TranscriptURI(args.ID)}
}

// fanOut notifies subscribed sessions that a resource changed. Delivery is
// asynchronous and best effort; a tool call never waits on slow streams.
func (s *Server) fanOut(tool string, arguments json.RawMessage) {
	var uris []string
	for _, rule := range mutationRules {
		if rule.tool == tool {
			uris = rule.touched(arguments)
			break
		}
	}
	if len(uris) == 0 {
		return
	}

	s.notifies.Add(1)
	go func() {
		defer s.notifies.Done()
		for _, uri := range uris {
			payload, err := encodeNotification("notifications/resources/updated", map[string]string{"uri": uri})
			if err != nil {
				s.logger.Error("notification encode failed", logging.Error(err))
				continue
			}
			delivered := 0
			for _, session := range s.registry.All() {
				if session.Subscribed(uri) {
					session.Deliver(payload)
					delivered++
				}
			}
			s.logger.Debug("resource update fanned out",
				logging.String(logging.FieldURI, uri),
				logging.Int("sessions", delivered))
		}
	}()
}
