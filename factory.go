package taskauth

import (
	"errors"

	"github.com/minus-twelve/taskauth/storage"
	"github.com/minus-twelve/taskauth/types"
)

func CreateStore(cfg types.StoreConfig) (Store, error) {
	switch cfg.StoreType {
	case "memory":
		return storage.NewMemoryStore(cfg.Memory.MaxKeys), nil
	case "redis":
		return storage.NewRedisStore(cfg.Redis)
	default:
		return nil, errors.New("invalid store type")
	}
}
