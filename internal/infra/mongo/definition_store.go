package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"drill-service/internal/domain"
)

const drillCollection = "drills"

// DefinitionStore is the document-store backend for drill definitions.
// Each definition is one document keyed by its drill id.
type DefinitionStore struct {
	Col *mongo.Collection
}

func NewDefinitionStore(db *mongo.Database) *DefinitionStore {
	return &DefinitionStore{Col: db.Collection(drillCollection)}
}

func (s *DefinitionStore) LoadDrill(ctx context.Context, drillID string) (domain.DrillDefinition, error) {
	var def domain.DrillDefinition
	err := s.Col.FindOne(ctx, bson.M{"_id": drillID}).Decode(&def)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.DrillDefinition{}, domain.ErrDrillNotFound
	}
	if err != nil {
		return domain.DrillDefinition{}, fmt.Errorf("load drill %s: %w", drillID, err)
	}
	return def, nil
}

func (s *DefinitionStore) ListDrills(ctx context.Context) ([]domain.DrillDefinition, error) {
	cursor, err := s.Col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list drills: %w", err)
	}
	defer cursor.Close(ctx)

	out := make([]domain.DrillDefinition, 0)
	for cursor.Next(ctx) {
		var def domain.DrillDefinition
		if err := cursor.Decode(&def); err != nil {
			return nil, fmt.Errorf("decode drill: %w", err)
		}
		out = append(out, def)
	}
	return out, cursor.Err()
}

func (s *DefinitionStore) SaveDrill(ctx context.Context, def domain.DrillDefinition) error {
	_, err := s.Col.ReplaceOne(ctx, bson.M{"_id": def.ID}, def, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save drill %s: %w", def.ID, err)
	}
	return nil
}

// EnsureIndexes creates the secondary indexes used by catalog filters.
func (s *DefinitionStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.Col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "type", Value: 1}}},
		{Keys: bson.D{{Key: "regions", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create drill indexes: %w", err)
	}
	return nil
}
