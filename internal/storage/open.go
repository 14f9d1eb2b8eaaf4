package storage

import (
	"errors"
	"strings"

	logx "sessionkeeper/pkg/logx"
)

// Open opens the configured driver. Driver "none" returns (nil, nil).
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.KeepRuns <= 0 {
		cfg.KeepRuns = defaultKeepRuns
	}

	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
