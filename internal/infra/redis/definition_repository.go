package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"drill-service/internal/domain"
)

// DefinitionLoader fetches drill definitions from a backing store.
type DefinitionLoader interface {
	LoadDrill(ctx context.Context, drillID string) (domain.DrillDefinition, error)
}

// DefinitionRepository caches drill definitions in Redis and falls back to a
// loader on cache miss. Each drill is stored whole as JSON:
// SET drill:{drillID}:definition {json} PX ttl+jitter
type DefinitionRepository struct {
	client *redis.Client
	loader DefinitionLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewDefinitionRepository(client *redis.Client, loader DefinitionLoader, ttl time.Duration) *DefinitionRepository {
	return &DefinitionRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *DefinitionRepository) GetDrill(ctx context.Context, drillID string) (domain.DrillDefinition, error) {
	if def, ok := r.cached(ctx, drillID); ok {
		return def, nil
	}

	result, err, _ := r.sf.Do(drillID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if def, ok := r.cached(ctx, drillID); ok {
			return def, nil
		}

		def, err := r.loader.LoadDrill(ctx, drillID)
		if err != nil {
			return domain.DrillDefinition{}, err
		}

		payload, err := json.Marshal(def)
		if err != nil {
			return domain.DrillDefinition{}, fmt.Errorf("encode drill %s: %w", drillID, err)
		}
		// Cache write failures only cost a reload.
		_ = r.client.Set(ctx, definitionKey(drillID), payload, r.ttlWithJitter()).Err()
		return def, nil
	})
	if err != nil {
		return domain.DrillDefinition{}, err
	}
	return result.(domain.DrillDefinition), nil
}

// Invalidate drops the cached copy of drillID for every instance.
func (r *DefinitionRepository) Invalidate(ctx context.Context, drillID string) error {
	r.sf.Forget(drillID)
	if err := r.client.Del(ctx, definitionKey(drillID)).Err(); err != nil {
		return fmt.Errorf("invalidate drill %s: %w", drillID, err)
	}
	return nil
}

func (r *DefinitionRepository) cached(ctx context.Context, drillID string) (domain.DrillDefinition, bool) {
	raw, err := r.client.Get(ctx, definitionKey(drillID)).Bytes()
	if err != nil {
		return domain.DrillDefinition{}, false
	}
	var def domain.DrillDefinition
	if err := json.Unmarshal(raw, &def); err != nil {
		return domain.DrillDefinition{}, false
	}
	return def, true
}

func definitionKey(drillID string) string {
	return "drill:" + drillID + ":definition"
}

func (r *DefinitionRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// isMiss reports whether err is a plain cache miss.
func isMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}
