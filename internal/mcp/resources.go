package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"scrivener/internal/entities"
)

// Resource URI schemes. Entities live at entity://{type}/{name}, finished
// transcripts at transcript://{id}.
const (
	entityScheme     = "entity://"
	transcriptScheme = "transcript://"
)

// EntityURI builds the canonical resource URI for an entity.
func EntityURI(entityType, name string) string {
	return entityScheme + entityType + "/" + name
}

// TranscriptURI builds the canonical resource URI for an item's transcript.
func TranscriptURI(itemID string) string {
	return transcriptScheme + itemID
}

type resourceDescriptor struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

type resourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}

func (s *Server) handleResourcesList(ctx context.Context, req *rpcRequest) *rpcResponse {
	var resources []resourceDescriptor

	all, err := s.entities.List("")
	if err != nil {
		return errorResponse(req.ID, codeInternalError, fmt.Sprintf("list entities: %v", err))
	}
	for _, entity := range all {
		resources = append(resources, resourceDescriptor{
			URI:      EntityURI(entity.Type, entity.Name),
			Name:     entity.Name,
			MimeType: "application/json",
		})
	}

	items, err := s.store.List(ctx)
	if err != nil {
		return errorResponse(req.ID, codeInternalError, fmt.Sprintf("list items: %v", err))
	}
	for _, item := range items {
		if item.FinalText == "" {
			continue
		}
		resources = append(resources, resourceDescriptor{
			URI:         TranscriptURI(item.ID),
			Name:        item.Title,
			Description: "Transcript (" + string(item.Status) + ")",
			MimeType:    "text/markdown",
		})
	}

	if resources == nil {
		resources = []resourceDescriptor{}
	}
	return resultResponse(req.ID, map[string]any{"resources": resources})
}

func (s *Server) handleResourcesRead(ctx context.Context, req *rpcRequest) *rpcResponse {
	var params struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.URI == "" {
		return errorResponse(req.ID, codeInvalidParams, "uri is required")
	}

	content, err := s.readResource(ctx, params.URI)
	if err != nil {
		return errorResponse(req.ID, codeResourceNotFound, err.Error())
	}
	return resultResponse(req.ID, map[string]any{"contents": []resourceContent{*content}})
}

func (s *Server) readResource(ctx context.Context, uri string) (*resourceContent, error) {
	switch {
	case strings.HasPrefix(uri, entityScheme):
		rest := strings.TrimPrefix(uri, entityScheme)
		entityType, name, ok := strings.Cut(rest, "/")
		if !ok || !entities.ValidType(entityType) || name == "" {
			return nil, fmt.Errorf("malformed entity uri %q", uri)
		}
		entity, err := s.entities.Get(entityType, name)
		if err != nil {
			return nil, fmt.Errorf("read entity: %w", err)
		}
		if entity == nil {
			return nil, fmt.Errorf("entity %s/%s not found", entityType, name)
		}
		encoded, err := json.MarshalIndent(entity, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode entity: %w", err)
		}
		return &resourceContent{URI: uri, MimeType: "application/json", Text: string(encoded)}, nil

	case strings.HasPrefix(uri, transcriptScheme):
		id := strings.TrimPrefix(uri, transcriptScheme)
		item, err := s.store.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("read transcript: %w", err)
		}
		if item == nil || item.FinalText == "" {
			return nil, fmt.Errorf("transcript %s not found", id)
		}
		return &resourceContent{URI: uri, MimeType: "text/markdown", Text: item.FinalText}, nil

	default:
		return nil, fmt.Errorf("unsupported resource uri %q", uri)
	}
}
