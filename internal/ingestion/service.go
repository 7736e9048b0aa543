package ingestion

import (
	"github.com/gin-gonic/gin"

	"github.com/streamflix/partwise/internal/core/storage"
)

type Service struct {
	store            storage.EventStore
	maxBodySizeBytes int
}

func NewService(repo storage.EventStore, maxBodySizeMB int) *Service {
	if repo == nil {
		panic("ingestion: store must not be nil")
	}
	if maxBodySizeMB <= 0 {
		maxBodySizeMB = 1 // default to 1MB
	}
	return &Service{
		store:            repo,
		maxBodySizeBytes: maxBodySizeMB * 1024 * 1024,
	}
}

// RegisterRoutes registers the ingestion service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/events", s.IngestHandler)
}
