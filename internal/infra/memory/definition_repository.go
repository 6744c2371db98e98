package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"drill-service/internal/domain"
)

// DefinitionLoader fetches drill definitions from a backing store.
type DefinitionLoader interface {
	LoadDrill(ctx context.Context, drillID string) (domain.DrillDefinition, error)
}

// DefinitionRepository caches drill definitions with TTL to avoid repeated store hits.
type DefinitionRepository struct {
	loader DefinitionLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedDefinition
}

type cachedDefinition struct {
	def       domain.DrillDefinition
	expiresAt time.Time
}

func NewDefinitionRepository(loader DefinitionLoader, ttl time.Duration) *DefinitionRepository {
	return &DefinitionRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedDefinition),
	}
}

func (r *DefinitionRepository) GetDrill(ctx context.Context, drillID string) (domain.DrillDefinition, error) {
	if def, ok := r.lookup(drillID, r.clock()); ok {
		return def, nil
	}

	result, err, _ := r.sf.Do(drillID, func() (interface{}, error) {
		now := r.clock()
		if def, ok := r.lookup(drillID, now); ok {
			return def, nil
		}

		def, err := r.loader.LoadDrill(ctx, drillID)
		if err != nil {
			return domain.DrillDefinition{}, err
		}

		r.mu.Lock()
		r.cache[drillID] = cachedDefinition{
			def:       def,
			expiresAt: now.Add(r.ttlWithJitterLocked()),
		}
		r.mu.Unlock()
		return def, nil
	})
	if err != nil {
		return domain.DrillDefinition{}, err
	}
	return result.(domain.DrillDefinition), nil
}

// Invalidate drops the cached copy of drillID.
func (r *DefinitionRepository) Invalidate(_ context.Context, drillID string) error {
	r.mu.Lock()
	delete(r.cache, drillID)
	r.mu.Unlock()
	r.sf.Forget(drillID)
	return nil
}

func (r *DefinitionRepository) lookup(drillID string, now time.Time) (domain.DrillDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[drillID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.DrillDefinition{}, false
	}
	return entry.def, true
}

func (r *DefinitionRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
