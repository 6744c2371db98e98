package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"drill-service/internal/domain"
)

// DefinitionStore is a map-backed drill store, useful for tests, demos and
// fixture-driven deployments.
type DefinitionStore struct {
	mu     sync.RWMutex
	drills map[string]domain.DrillDefinition
}

func NewDefinitionStore(drills ...domain.DrillDefinition) *DefinitionStore {
	s := &DefinitionStore{drills: make(map[string]domain.DrillDefinition, len(drills))}
	for _, d := range drills {
		s.drills[d.ID] = d
	}
	return s
}

func (s *DefinitionStore) LoadDrill(_ context.Context, drillID string) (domain.DrillDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if def, ok := s.drills[drillID]; ok {
		return def, nil
	}
	return domain.DrillDefinition{}, domain.ErrDrillNotFound
}

func (s *DefinitionStore) ListDrills(_ context.Context) ([]domain.DrillDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DrillDefinition, 0, len(s.drills))
	for _, d := range s.drills {
		out = append(out, d)
	}
	return out, nil
}

func (s *DefinitionStore) SaveDrill(_ context.Context, def domain.DrillDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drills[def.ID] = def
	return nil
}

// fixtureFile is the YAML layout of a drill fixture file.
type fixtureFile struct {
	Drills []domain.DrillDefinition `yaml:"drills"`
}

// LoadFixtures reads drills from a YAML file, applying authoring defaults and
// validation to each one.
func LoadFixtures(path string) ([]domain.DrillDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(data)
}

// ParseFixtures decodes fixture YAML.
func ParseFixtures(data []byte) ([]domain.DrillDefinition, error) {
	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	for i := range file.Drills {
		d := &file.Drills[i]
		d.ApplyDefaults()
		if d.Version == 0 {
			d.Version = 1
		}
		if d.ID == "" {
			return nil, fmt.Errorf("fixture %d: %w", i, domain.Invalid("id", "is required"))
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("fixture %s: %w", d.ID, err)
		}
	}
	return file.Drills, nil
}
