package grpc

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/grpc/metadata"
)

type contextKey string

const contextKeyProjectID contextKey = "project_id"

// extractAPIKeyFromMetadata extracts the project API key from gRPC
// metadata. Supports both "authorization" (Bearer proj_...) and
// "x-api-key" (OTLP collector convention) headers.
func extractAPIKeyFromMetadata(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", fmt.Errorf("no metadata in gRPC context")
	}

	if auth := md.Get("authorization"); len(auth) > 0 {
		bearer := auth[0]
		if strings.HasPrefix(bearer, "Bearer ") {
			return strings.TrimPrefix(bearer, "Bearer "), nil
		}
		return bearer, nil
	}

	if apiKey := md.Get("x-api-key"); len(apiKey) > 0 {
		return apiKey[0], nil
	}

	return "", fmt.Errorf("API key not found in gRPC metadata (tried 'authorization' and 'x-api-key' headers)")
}

// extractProjectIDFromContext retrieves the authenticated project id, set
// by AuthInterceptor after a successful API key lookup.
func extractProjectIDFromContext(ctx context.Context) (*string, error) {
	val := ctx.Value(contextKeyProjectID)
	if val == nil {
		return nil, fmt.Errorf("project_id not found in context (authentication may have failed)")
	}
	projectID, ok := val.(string)
	if !ok {
		return nil, fmt.Errorf("project_id has invalid type in context")
	}
	return &projectID, nil
}

func storeProjectIDInContext(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, contextKeyProjectID, projectID)
}
