package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"drill-service/internal/domain"
)

// CatalogService lists and authors drill definitions. Edits never reach
// attempts that are already running because attempts snapshot their scenarios.
type CatalogService struct {
	store DefinitionStore
	cache DefinitionCache
	stats DrillStatsRecorder
	now   func() time.Time
	log   *zap.Logger
}

func NewCatalogService(store DefinitionStore, cache DefinitionCache, log *zap.Logger) *CatalogService {
	if log == nil {
		log = zap.NewNop()
	}
	return &CatalogService{store: store, cache: cache, stats: noopStats{}, now: time.Now, log: log}
}

// WithStats sets the recorder that popularity and overview read from.
func (s *CatalogService) WithStats(stats DrillStatsRecorder) *CatalogService {
	s.stats = stats
	return s
}

// List returns the public view of every drill matching filter, sorted by title.
func (s *CatalogService) List(ctx context.Context, filter domain.DrillFilter) ([]domain.PublicDrill, error) {
	defs, err := s.store.ListDrills(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PublicDrill, 0, len(defs))
	for _, d := range defs {
		if filter.Match(d) {
			out = append(out, d.Public())
		}
	}
	slices.SortFunc(out, func(a, b domain.PublicDrill) int {
		if c := cmp.Compare(a.Title, b.Title); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// Get returns the public view of a drill. Archived drills are not found.
func (s *CatalogService) Get(ctx context.Context, drillID string) (domain.PublicDrill, error) {
	def, err := s.cache.GetDrill(ctx, drillID)
	if err != nil {
		return domain.PublicDrill{}, err
	}
	if def.Archived {
		return domain.PublicDrill{}, domain.ErrDrillNotFound
	}
	return def.Public(), nil
}

// Definition returns the full definition including answers, for authors.
func (s *CatalogService) Definition(ctx context.Context, drillID string) (domain.DrillDefinition, error) {
	return s.store.LoadDrill(ctx, drillID)
}

// Create validates and stores a new drill at version 1.
func (s *CatalogService) Create(ctx context.Context, def domain.DrillDefinition, authorID string) (domain.DrillDefinition, error) {
	def.ApplyDefaults()
	if err := def.Validate(); err != nil {
		return domain.DrillDefinition{}, err
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	} else if _, err := s.store.LoadDrill(ctx, def.ID); err == nil {
		return domain.DrillDefinition{}, fmt.Errorf("drill %s already exists: %w", def.ID, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.DrillDefinition{}, err
	}
	def.Version = 1
	def.CreatedBy = authorID
	def.UpdatedAt = s.now().UTC()
	if err := s.store.SaveDrill(ctx, def); err != nil {
		return domain.DrillDefinition{}, err
	}
	s.log.Info("drill created", zap.String("drill_id", def.ID), zap.String("author", authorID))
	return def, nil
}

// Update replaces a drill, bumps its version and drops cached copies.
func (s *CatalogService) Update(ctx context.Context, drillID string, def domain.DrillDefinition) (domain.DrillDefinition, error) {
	current, err := s.store.LoadDrill(ctx, drillID)
	if err != nil {
		return domain.DrillDefinition{}, err
	}
	def.ApplyDefaults()
	if err := def.Validate(); err != nil {
		return domain.DrillDefinition{}, err
	}
	def.ID = drillID
	def.Version = current.Version + 1
	def.CreatedBy = current.CreatedBy
	def.UpdatedAt = s.now().UTC()
	if err := s.store.SaveDrill(ctx, def); err != nil {
		return domain.DrillDefinition{}, err
	}
	if err := s.cache.Invalidate(ctx, drillID); err != nil {
		s.log.Warn("invalidate drill cache", zap.String("drill_id", drillID), zap.Error(err))
	}
	s.log.Info("drill updated", zap.String("drill_id", drillID), zap.Int("version", def.Version))
	return def, nil
}

// Popular returns active drills ordered by attempts, then average score.
func (s *CatalogService) Popular(ctx context.Context, limit int) ([]domain.PopularDrill, error) {
	drills, err := s.withStats(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPopularLimit
	}
	return domain.RankByPopularity(drills, limit), nil
}

// Overview aggregates statistics of active drills per drill type.
func (s *CatalogService) Overview(ctx context.Context) ([]domain.TypeOverview, error) {
	drills, err := s.withStats(ctx)
	if err != nil {
		return nil, err
	}
	return domain.SummarizeByType(drills), nil
}

const defaultPopularLimit = 10

func (s *CatalogService) withStats(ctx context.Context) ([]domain.PopularDrill, error) {
	defs, err := s.store.ListDrills(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.PopularDrill, 0, len(defs))
	for _, d := range defs {
		if d.Archived {
			continue
		}
		st, err := s.stats.Stats(ctx, d.ID)
		if err != nil {
			return nil, fmt.Errorf("stats for %s: %w", d.ID, err)
		}
		out = append(out, domain.PopularDrill{
			ID:          d.ID,
			Title:       d.Title,
			Description: d.Description,
			Type:        d.Type,
			Difficulty:  d.Difficulty,
			Icon:        d.Icon,
			Statistics:  st,
		})
	}
	return out, nil
}
