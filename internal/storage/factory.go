// Package storage selects and constructs the configured storage backend.
package storage

import (
	"fmt"

	"github.com/forumdesk/foyer/internal/common"
	"github.com/forumdesk/foyer/internal/interfaces"
	"github.com/forumdesk/foyer/internal/storage/memory"
	"github.com/forumdesk/foyer/internal/storage/surrealdb"
)

// NewStorageManager constructs the backend named by config.Storage.Backend.
func NewStorageManager(logger *common.Logger, config *common.Config) (interfaces.StorageManager, error) {
	switch config.Storage.Backend {
	case "", "surrealdb":
		return surrealdb.NewManager(logger, config)
	case "memory":
		logger.Warn().Msg("Using in-memory storage — state will not survive a restart")
		return memory.NewManager(logger), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", config.Storage.Backend)
	}
}
