package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-lineqa/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/models"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/repositories"
	"github.com/ekaya-inc/ekaya-lineqa/pkg/storage"
)

// DatasetDetail is a dataset's metadata with the outcome of each source
// in the run that produced it.
type DatasetDetail struct {
	*models.DatasetMetadata
	Sources []models.SourceStatus `json:"sources"`
}

// DatasetService manages stored combined datasets.
type DatasetService interface {
	List(ctx context.Context) ([]*models.DatasetMetadata, error)
	Get(ctx context.Context, name string) (*DatasetDetail, error)
	Load(ctx context.Context, name string) (*models.Table, error)
	Delete(ctx context.Context, name string) error
}

type datasetService struct {
	repo   repositories.DatasetRepository
	store  storage.DatasetStore
	logger *zap.Logger
}

// NewDatasetService creates a DatasetService.
func NewDatasetService(repo repositories.DatasetRepository, store storage.DatasetStore, logger *zap.Logger) DatasetService {
	return &datasetService{repo: repo, store: store, logger: logger.Named("datasets")}
}

func (s *datasetService) List(ctx context.Context) ([]*models.DatasetMetadata, error) {
	return s.repo.List(ctx)
}

func (s *datasetService) Get(ctx context.Context, name string) (*DatasetDetail, error) {
	meta, err := s.repo.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	runs, err := s.repo.FetchRuns(ctx, name)
	if err != nil {
		return nil, err
	}
	return &DatasetDetail{DatasetMetadata: meta, Sources: runs}, nil
}

// Load reads a dataset's rows. Registered and unregistered files both load,
// so a table written by an older run is still usable.
func (s *datasetService) Load(ctx context.Context, name string) (*models.Table, error) {
	return s.store.Load(ctx, name)
}

// Delete removes the metadata and the data file. A dataset known to only
// one of the two is still removed from it.
func (s *datasetService) Delete(ctx context.Context, name string) error {
	repoErr := s.repo.Delete(ctx, name)
	storeErr := s.store.Delete(ctx, name)

	switch {
	case repoErr == nil && storeErr == nil:
	case errors.Is(repoErr, apperrors.ErrNotFound) && errors.Is(storeErr, apperrors.ErrNotFound):
		return fmt.Errorf("dataset %s: %w", name, apperrors.ErrNotFound)
	case repoErr != nil && !errors.Is(repoErr, apperrors.ErrNotFound):
		return repoErr
	case storeErr != nil && !errors.Is(storeErr, apperrors.ErrNotFound):
		return storeErr
	}
	s.logger.Info("Dataset deleted", zap.String("dataset", name))
	return nil
}
