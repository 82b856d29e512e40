package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jamaly87/vectorindex/internal/models"
	"github.com/jamaly87/vectorindex/internal/retriever"
	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) getTools() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "refresh_index",
			Description: "Scan a workspace directory, diff it against the embedding cache's known state for an artifact, and incrementally update the vector index: compute embeddings for new or changed files, and remove rows for files that were deleted. Use this before retrieve_chunks can return results for a repository, and again whenever the workspace has changed on disk.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"workspace_root": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the workspace directory to scan",
					},
					"branch": map[string]interface{}{
						"type":        "string",
						"description": "Branch name identifying this logical corpus",
					},
					"directory": map[string]interface{}{
						"type":        "string",
						"description": "Directory name identifying this logical corpus within the branch",
					},
					"artifact_id": map[string]interface{}{
						"type":        "string",
						"description": "Opaque identifier for the artifact being indexed",
					},
				},
				Required: []string{"workspace_root", "branch", "directory", "artifact_id"},
			},
		},
		{
			Name:        "retrieve_chunks",
			Description: "Search one or more previously refreshed tags for the code chunks most relevant to a natural-language query, ranked by vector distance. Use this to answer 'where is...', 'find...', or 'show me...' questions about a codebase that has already been refreshed with refresh_index.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Natural language search query",
					},
					"artifact_id": map[string]interface{}{
						"type":        "string",
						"description": "Opaque identifier for the artifact to search",
					},
					"tags": map[string]interface{}{
						"type":        "array",
						"description": "List of {branch, directory} pairs to search",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"branch":    map[string]interface{}{"type": "string"},
								"directory": map[string]interface{}{"type": "string"},
							},
							"required": []string{"branch", "directory"},
						},
					},
					"limit": map[string]interface{}{
						"type":        "number",
						"description": "Maximum number of chunks to return (default: 5)",
						"default":     5,
					},
					"filter_directory": map[string]interface{}{
						"type":        "string",
						"description": "Optional path prefix to restrict results to",
					},
				},
				Required: []string{"query", "artifact_id", "tags"},
			},
		},
	}
}

func (s *Server) handleRefreshIndex(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	root, ok := args["workspace_root"].(string)
	if !ok || root == "" {
		return errorResult("workspace_root is required and must be a string"), nil
	}
	branch, _ := args["branch"].(string)
	directory, _ := args["directory"].(string)
	artifactID, ok := args["artifact_id"].(string)
	if !ok || artifactID == "" {
		return errorResult("artifact_id is required and must be a string"), nil
	}

	results, err := s.producer.Diff(root, artifactID, s.cache)
	if err != nil {
		return errorResult(fmt.Sprintf("failed to diff workspace: %v", err)), nil
	}

	tag := models.Tag{Branch: branch, Directory: directory, ArtifactID: artifactID}
	markComplete := func(items []models.FileVersion, kind models.ResultKind) {
		s.logger.Debug("refresh progress", "kind", kind.String(), "count", len(items))
	}

	var lastErr error
	progressCh := s.coord.Update(ctx, tag, results, markComplete, artifactID)
	for event := range progressCh {
		if event.Err != nil {
			lastErr = event.Err
			continue
		}
		s.logger.Debug("refresh event", "progress", event.Progress, "status", event.Status, "desc", event.Desc)
	}
	if lastErr != nil {
		return errorResult(fmt.Sprintf("refresh failed: %v", lastErr)), nil
	}

	response := map[string]interface{}{
		"compute":    len(results.Compute),
		"add_tag":    len(results.AddTag),
		"remove_tag": len(results.RemoveTag),
		"delete":     len(results.Delete),
	}
	return successResult(response), nil
}

func (s *Server) handleRetrieveChunks(ctx context.Context, args map[string]interface{}) (*mcp.CallToolResult, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return errorResult("query is required and must be a string"), nil
	}
	artifactID, ok := args["artifact_id"].(string)
	if !ok || artifactID == "" {
		return errorResult("artifact_id is required and must be a string"), nil
	}

	rawTags, ok := args["tags"].([]interface{})
	if !ok || len(rawTags) == 0 {
		return errorResult("tags must be a non-empty array of {branch, directory} pairs"), nil
	}
	tags := make([]retriever.BranchDirectory, 0, len(rawTags))
	for _, rt := range rawTags {
		m, ok := rt.(map[string]interface{})
		if !ok {
			continue
		}
		branch, _ := m["branch"].(string)
		directory, _ := m["directory"].(string)
		tags = append(tags, retriever.BranchDirectory{Branch: branch, Directory: directory})
	}

	limit := 5
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}
	filterDirectory, _ := args["filter_directory"].(string)

	chunks, err := s.retr.Retrieve(ctx, query, limit, tags, artifactID, filterDirectory)
	if err != nil {
		return errorResult(fmt.Sprintf("retrieve failed: %v", err)), nil
	}

	return successResult(map[string]interface{}{
		"chunks": chunks,
		"count":  len(chunks),
	}), nil
}

func successResult(data interface{}) *mcp.CallToolResult {
	jsonData, _ := json.MarshalIndent(data, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(jsonData)},
		},
	}
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: fmt.Sprintf("Error: %s", strings.TrimSpace(message))},
		},
		IsError: true,
	}
}
