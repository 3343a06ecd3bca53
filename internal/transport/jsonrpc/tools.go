package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apmDomain "brokle/internal/core/domain/apm"
	"brokle/pkg/ulid"
)

// toolInfo describes one callable tool for tools/list.
type toolInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema interface{} `json:"inputSchema"`
}

var tools = []toolInfo{
	{
		Name:        "list_errors",
		Description: "List recent errors grouped by fingerprint",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"status": map[string]interface{}{"type": "string", "enum": []string{"open", "resolved", "ignored"}},
				"limit":  map[string]interface{}{"type": "integer", "default": 10},
			},
		},
	},
	{
		Name:        "error_details",
		Description: "Get full details for a specific error",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"id": map[string]interface{}{"type": "string"},
			},
			"required": []string{"id"},
		},
	},
	{
		Name:        "slow_routes",
		Description: "Get slowest routes by average latency",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"period": map[string]interface{}{"type": "string", "enum": []string{"24h", "7d", "30d"}, "default": "24h"},
				"limit":  map[string]interface{}{"type": "integer", "default": 10},
			},
		},
	},
	{
		Name:        "system_status",
		Description: "Get overall system health",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	},
}

func (s *Server) handleListTools() interface{} {
	return map[string]interface{}{"tools": tools}
}

// toolCallParams is the body of a tools/call request.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// toolContent wraps a tool's JSON result as the text-content block the
// tool protocol expects.
type toolContent struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (s *Server) handleToolCall(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	if raw == nil {
		return nil, fmt.Errorf("missing params")
	}

	var params toolCallParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	projectID, err := s.defaultProjectID(ctx)
	if err != nil {
		return nil, err
	}

	var args map[string]interface{}
	if len(params.Arguments) > 0 {
		if err := json.Unmarshal(params.Arguments, &args); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
	}

	var result interface{}
	switch params.Name {
	case "list_errors":
		result, err = s.toolListErrors(ctx, projectID, args)
	case "error_details":
		result, err = s.toolErrorDetails(ctx, args)
	case "slow_routes":
		result, err = s.toolSlowRoutes(ctx, projectID, args)
	case "system_status":
		result, err = s.toolSystemStatus(ctx, projectID)
	default:
		return nil, fmt.Errorf("unknown tool: %s", params.Name)
	}
	if err != nil {
		return nil, err
	}

	pretty, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}

	return toolContent{Content: []contentBlock{{Type: "text", Text: string(pretty)}}}, nil
}

func (s *Server) defaultProjectID(ctx context.Context) (string, error) {
	project, err := s.projects.GetDefault(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve default project: %w", err)
	}
	if project == nil {
		return "", fmt.Errorf("no default project configured")
	}
	return project.ID.String(), nil
}

func (s *Server) toolListErrors(ctx context.Context, projectID string, args map[string]interface{}) (interface{}, error) {
	f := apmDomain.ErrorFilter{
		ProjectID: projectID,
		Status:    stringArg(args, "status"),
		Limit:     intArg(args, "limit", 10),
	}
	return s.svc.ListErrors(ctx, f)
}

func (s *Server) toolErrorDetails(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	idStr := stringArg(args, "id")
	if idStr == "" {
		return nil, fmt.Errorf("missing id")
	}
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("invalid id: %w", err)
	}

	group, err := s.svc.GetError(ctx, id)
	if err != nil {
		return nil, err
	}

	var occurrences interface{} = []*apmDomain.ErrorOccurrence{}
	if group != nil {
		occurrences, err = s.svc.ListOccurrences(ctx, id, 5)
		if err != nil {
			return nil, err
		}
	}

	return map[string]interface{}{
		"error":       group,
		"occurrences": occurrences,
	}, nil
}

func (s *Server) toolSlowRoutes(ctx context.Context, projectID string, args map[string]interface{}) (interface{}, error) {
	period := stringArg(args, "period")
	var since time.Time
	switch period {
	case "7d":
		since = time.Now().UTC().AddDate(0, 0, -7)
	case "30d":
		since = time.Now().UTC().AddDate(0, 0, -30)
	default:
		since = time.Now().UTC().Add(-24 * time.Hour)
	}

	limit := intArg(args, "limit", 10)
	summaries, err := s.svc.RouteSummaries(ctx, projectID, since, apmDomain.SortAvg)
	if err != nil {
		return nil, err
	}
	if len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func (s *Server) toolSystemStatus(ctx context.Context, projectID string) (interface{}, error) {
	since := time.Now().UTC().Add(-24 * time.Hour)

	requests, err := s.svc.CountSince(ctx, projectID, since)
	if err != nil {
		return nil, err
	}
	hourlyErrors, err := s.svc.HourlyErrorStats(ctx, projectID, 24)
	if err != nil {
		return nil, err
	}
	latency, err := s.svc.LatencyStats(ctx, projectID, since)
	if err != nil {
		return nil, err
	}

	var errorCount int64
	for _, h := range hourlyErrors {
		errorCount += h.Count
	}

	var errorRate float64
	if requests > 0 {
		errorRate = float64(errorCount) / float64(requests)
	}

	var dbSizeMB float64
	if s.db != nil {
		dbSizeMB, err = s.db.SizeMB()
		if err != nil {
			dbSizeMB = 0
		}
	}

	return map[string]interface{}{
		"requests_24h":   requests,
		"errors_24h":     errorCount,
		"error_rate":     errorRate,
		"avg_response_ms": latency.AvgMs,
		"db_size_mb":     dbSizeMB,
	}, nil
}

func stringArg(args map[string]interface{}, key string) string {
	if args == nil {
		return ""
	}
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]interface{}, key string, def int) int {
	if args == nil {
		return def
	}
	v, ok := args[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return def
	}
}
