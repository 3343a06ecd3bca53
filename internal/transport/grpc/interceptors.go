package grpc

import (
	"context"
	"time"

	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apmDomain "brokle/internal/core/domain/apm"
)

// AuthInterceptor validates a project API key carried in gRPC metadata. When
// enableProjects is false, every request resolves to the single default
// project and no key is required.
type AuthInterceptor struct {
	projects       apmDomain.ProjectRepository
	logger         *slog.Logger
	enableProjects bool
}

func NewAuthInterceptor(projects apmDomain.ProjectRepository, logger *slog.Logger, enableProjects bool) *AuthInterceptor {
	return &AuthInterceptor{projects: projects, logger: logger, enableProjects: enableProjects}
}

// Unary returns a gRPC unary interceptor enforcing project API key auth.
func (i *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if !i.enableProjects {
			project, err := i.projects.GetDefault(ctx)
			if err != nil || project == nil {
				i.logger.Error("no default project configured", "error", err, "method", info.FullMethod)
				return nil, status.Error(codes.Internal, "no default project configured")
			}
			return handler(storeProjectIDInContext(ctx, project.ID.String()), req)
		}

		apiKey, err := extractAPIKeyFromMetadata(ctx)
		if err != nil {
			i.logger.Error("failed to extract API key from gRPC metadata", "error", err, "method", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, "API key required in metadata (x-api-key or authorization header)")
		}

		project, err := i.projects.GetByAPIKey(ctx, apiKey)
		if err != nil || project == nil {
			i.logger.Error("invalid API key in gRPC request", "error", err, "method", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, "invalid API key")
		}

		ctx = storeProjectIDInContext(ctx, project.ID.String())

		return handler(ctx, req)
	}
}

// LoggingInterceptor logs gRPC requests with timing and errors.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		if err != nil {
			logger.Error("gRPC request failed", "method", info.FullMethod, "duration_ms", duration.Milliseconds(), "error", err)
		} else {
			logger.Info("gRPC request completed", "method", info.FullMethod, "duration_ms", duration.Milliseconds())
		}

		return resp, err
	}
}
