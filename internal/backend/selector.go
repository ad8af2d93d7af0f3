package backend

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/JLAD75/FileGuard/internal/configuration"
)

// Backend type names accepted in configuration.
const (
	TypeLocal = "local"
	TypeS3    = "s3"
	TypeMinIO = "minio"
)

// ErrUnknownBackend is a configuration error, fatal at startup.
var ErrUnknownBackend = errors.New("unknown storage backend")

var (
	selectMu sync.Mutex
	instance Backend
)

// Select resolves the configured backend type to one constructed instance.
// The first successful construction is cached for the process lifetime;
// later calls return the same instance regardless of configuration.
func Select(cfg configuration.BackendConfig) (Backend, error) {
	selectMu.Lock()
	defer selectMu.Unlock()

	if instance != nil {
		return instance, nil
	}

	var (
		b   Backend
		err error
	)
	switch cfg.Type {
	case TypeLocal:
		b, err = NewLocalBackend(cfg.LocalPath)
	case TypeS3:
		b, err = NewS3Backend(cfg.S3)
	case TypeMinIO:
		b, err = NewMinIOBackend(cfg.MinIO)
	default:
		return nil, fmt.Errorf("%w: %q (valid options are local, s3, minio)", ErrUnknownBackend, cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	instance = b
	log.Printf("[Backend] using %s storage backend", cfg.Type)
	return instance, nil
}

// Reset clears the cached instance. Test isolation only.
func Reset() {
	selectMu.Lock()
	defer selectMu.Unlock()
	instance = nil
}
