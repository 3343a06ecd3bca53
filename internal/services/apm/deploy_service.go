package apm

import (
	"context"
	"time"

	apmDomain "brokle/internal/core/domain/apm"
	"brokle/pkg/ulid"
)

// deployService ingests and lists deploy markers.
type deployService struct {
	deploys apmDomain.DeployRepository
}

func newDeployService(deploys apmDomain.DeployRepository) *deployService {
	return &deployService{deploys: deploys}
}

func (s *deployService) IngestDeploy(ctx context.Context, projectID string, in *apmDomain.IncomingDeploy) (ulid.ULID, error) {
	if in.GitSHA == "" {
		return ulid.ULID{}, apmDomain.NewError(apmDomain.KindInvalidInput, "git_sha is required")
	}

	at := time.Now().UTC()
	if in.Timestamp != nil {
		at = in.Timestamp.UTC()
	}

	deploy := &apmDomain.Deploy{
		ID:          ulid.New(),
		ProjectID:   projectID,
		GitSHA:      in.GitSHA,
		Version:     in.Version,
		Env:         in.Env,
		Timestamp:   at,
		Description: in.Description,
		Deployer:    in.Deployer,
	}

	if err := s.deploys.Create(ctx, deploy); err != nil {
		return ulid.ULID{}, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to create deploy marker", err)
	}
	return deploy.ID, nil
}

func (s *deployService) ListDeploys(ctx context.Context, projectID string, limit int) ([]*apmDomain.Deploy, error) {
	deploys, err := s.deploys.List(ctx, projectID, limit)
	if err != nil {
		return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to list deploys", err)
	}
	return deploys, nil
}

func (s *deployService) LatestDeploy(ctx context.Context, projectID string) (*apmDomain.Deploy, error) {
	deploy, err := s.deploys.Latest(ctx, projectID)
	if err != nil {
		return nil, apmDomain.WrapError(apmDomain.KindStorageFailure, "failed to get latest deploy", err)
	}
	return deploy, nil
}
