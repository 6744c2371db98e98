package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"drill-service/internal/domain"
)

func TestDefinitionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := startMongo(t, ctx)
	store := NewDefinitionStore(db)

	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}

	updated := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	flood := drill("flood-1", domain.DrillFlood, updated)
	fire := drill("fire-1", domain.DrillFire, updated)
	for _, d := range []domain.DrillDefinition{flood, fire} {
		if err := store.SaveDrill(ctx, d); err != nil {
			t.Fatalf("save %s: %v", d.ID, err)
		}
	}

	got, err := store.LoadDrill(ctx, "flood-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ID != "flood-1" || got.Type != domain.DrillFlood || got.PassingScore != 70 || got.MaxAttempts != 3 {
		t.Fatalf("unexpected drill %+v", got)
	}
	if !got.UpdatedAt.Equal(updated) {
		t.Fatalf("expected updatedAt %v, got %v", updated, got.UpdatedAt)
	}
	if len(got.Scenarios) != 1 || got.Scenarios[0].TimeLimit != 20 || !got.Scenarios[0].Options[0].IsCorrect {
		t.Fatalf("scenario data lost: %+v", got.Scenarios)
	}
	if got.TotalPossiblePoints() != 20 {
		t.Fatalf("expected 20 possible points, got %d", got.TotalPossiblePoints())
	}

	var raw bson.M
	if err := store.Col.FindOne(ctx, bson.M{"_id": "flood-1"}).Decode(&raw); err != nil {
		t.Fatalf("raw find: %v", err)
	}
	for _, field := range []string{"passing_score", "max_attempts", "scenarios", "updated_at"} {
		if _, ok := raw[field]; !ok {
			t.Fatalf("expected document field %q, got %v", field, raw)
		}
	}

	flood.Version = 2
	flood.Archived = true
	if err := store.SaveDrill(ctx, flood); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	list, err := store.ListDrills(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "fire-1" || list[1].ID != "flood-1" {
		t.Fatalf("unexpected list %+v", list)
	}
	if list[1].Version != 2 || !list[1].Archived {
		t.Fatalf("upsert did not replace the document: %+v", list[1])
	}

	if _, err := store.LoadDrill(ctx, "missing"); !errors.Is(err, domain.ErrDrillNotFound) {
		t.Fatalf("expected drill not found, got %v", err)
	}
}

func drill(id string, typ domain.DrillType, updated time.Time) domain.DrillDefinition {
	return domain.DrillDefinition{
		ID:           id,
		Title:        "Drill " + id,
		Type:         typ,
		Difficulty:   domain.DifficultyEasy,
		Regions:      []string{domain.RegionAll},
		PassingScore: 70,
		MaxAttempts:  3,
		Version:      1,
		UpdatedAt:    updated,
		Scenarios: []domain.Scenario{
			{
				Title:     "First move",
				TimeLimit: 20,
				Order:     1,
				Options: []domain.ScenarioOption{
					{Text: "Safe choice", IsCorrect: true, Points: 20, Feedback: "Correct"},
					{Text: "Unsafe choice"},
				},
			},
		},
	}
}

func startMongo(t *testing.T, ctx context.Context) *mongo.Database {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
	req := tc.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start mongo: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("mongo host: %v", err)
	}
	port, err := container.MappedPort(ctx, "27017/tcp")
	if err != nil {
		t.Fatalf("mongo port: %v", err)
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(fmt.Sprintf("mongodb://%s:%s", host, port.Port())))
	if err != nil {
		t.Fatalf("connect mongo: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(ctx) })
	if err := client.Ping(ctx, nil); err != nil {
		t.Fatalf("ping mongo: %v", err)
	}
	return client.Database("drill_test")
}
