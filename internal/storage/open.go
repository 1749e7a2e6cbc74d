package storage

import (
	"errors"
	"strings"

	logx "winova/pkg/logx"
)

// Open initializes the configured gateway. An empty driver selects the
// in-memory store.
func Open(cfg Config, log logx.Logger) (Gateway, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "mongo", "mongodb":
		return openMongo(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
