package session

import (
	"fmt"

	"github.com/scrypster/xmemory/internal/config"
)

// Open returns the Store selected by cfg.Session.Engine.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.Session.Engine {
	case config.EngineMemory:
		return NewMemoryStore(), nil
	case config.EngineSQLite:
		return NewSQLiteStore(cfg.SessionDSN())
	case config.EnginePostgres:
		return NewPostgresStore(cfg.SessionDSN())
	default:
		return nil, fmt.Errorf("session: unsupported engine %q", cfg.Session.Engine)
	}
}
