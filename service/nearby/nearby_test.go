package nearby

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aux-fm/auxio/db"
	"github.com/aux-fm/auxio/errs"
	"github.com/aux-fm/auxio/models"
)

type mockCycleSource struct {
	cycle *models.Cycle
}

func (m *mockCycleSource) Current(ctx context.Context) (*models.Cycle, error) {
	return m.cycle, nil
}

func setupTestDB(t *testing.T) *db.DB {
	t.Helper()

	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	if err := database.Initialize(); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	t.Cleanup(func() { database.Close() })
	return database
}

func createLocatedSubmission(t *testing.T, database *db.DB, subject, username string, number int64, lat, lon float64) {
	t.Helper()

	email := subject + "@example.com"
	id, err := database.CreateUser(subject, &email)
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	if err := database.SetUsername(id, username); err != nil {
		t.Fatalf("Failed to set username: %v", err)
	}

	sub := &models.Submission{
		ID:     uuid.NewString(),
		UserID: id,
		Number: number,
		Song: models.Song{
			Name:      "Kid A",
			Artist:    "Radiohead",
			URL:       "https://open.spotify.com/track/0Z1BGYbGTAh5xIdS3rqUMR",
			Timestamp: time.Now().UTC(),
		},
		Latitude:  &lat,
		Longitude: &lon,
		Time:      time.Now().UTC(),
	}
	if err := database.CreateSubmission(sub); err != nil {
		t.Fatalf("Failed to create submission: %v", err)
	}
}

// northOf returns a latitude offset corresponding to km kilometers.
func northOf(lat, km float64) float64 {
	return lat + (km/earthRadiusKm)*(180/math.Pi)
}

func TestGetNearby(t *testing.T) {
	database := setupTestDB(t)
	cycles := &mockCycleSource{cycle: &models.Cycle{Number: 1}}
	svc := NewService(database, cycles)

	centerLat, centerLon := 40.7128, -74.0060

	// Three submissions due north at roughly 5, 15 and 25 km.
	createLocatedSubmission(t, database, "sub-1", "alice", 1, northOf(centerLat, 5), centerLon)
	createLocatedSubmission(t, database, "sub-2", "bob", 1, northOf(centerLat, 15), centerLon)
	createLocatedSubmission(t, database, "sub-3", "carol", 1, northOf(centerLat, 25), centerLon)
	// Same spot, previous cycle: invisible.
	createLocatedSubmission(t, database, "sub-4", "dave", 0, centerLat, centerLon)

	results, err := svc.GetNearby(context.Background(), centerLat, centerLon, 20)
	if err != nil {
		t.Fatalf("GetNearby failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 results within 20km, got %d", len(results))
	}

	// Nearest first.
	if results[0].Username != "alice" || results[1].Username != "bob" {
		t.Errorf("Expected [alice bob] ordered by distance, got [%s %s]",
			results[0].Username, results[1].Username)
	}
	if math.Abs(results[0].DistanceKm-5) > 0.1 {
		t.Errorf("Expected ~5km for alice, got %f", results[0].DistanceKm)
	}
	if math.Abs(results[1].DistanceKm-15) > 0.1 {
		t.Errorf("Expected ~15km for bob, got %f", results[1].DistanceKm)
	}
}

func TestGetNearbyEmpty(t *testing.T) {
	database := setupTestDB(t)
	svc := NewService(database, &mockCycleSource{cycle: &models.Cycle{Number: 1}})

	results, err := svc.GetNearby(context.Background(), 40.0, -74.0, 10)
	if err != nil {
		t.Fatalf("GetNearby failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected no results, got %d", len(results))
	}
}

func TestGetNearbyValidation(t *testing.T) {
	database := setupTestDB(t)
	svc := NewService(database, &mockCycleSource{cycle: &models.Cycle{Number: 1}})

	testCases := []struct {
		name             string
		lat, lon, radius float64
	}{
		{"zero radius", 40, -74, 0},
		{"negative radius", 40, -74, -5},
		{"latitude out of range", 91, -74, 10},
		{"longitude out of range", 40, -181, 10},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.GetNearby(context.Background(), tc.lat, tc.lon, tc.radius)
			if !errs.Is(errs.Invalid, err) {
				t.Errorf("Expected Invalid, got %v", err)
			}
		})
	}
}

func TestHaversineKm(t *testing.T) {
	// New York to Los Angeles is roughly 3936 km.
	got := haversineKm(40.7128, -74.0060, 34.0522, -118.2437)
	if math.Abs(got-3936) > 50 {
		t.Errorf("Expected ~3936km, got %f", got)
	}

	if d := haversineKm(40, -74, 40, -74); d != 0 {
		t.Errorf("Expected zero distance for same point, got %f", d)
	}
}

func TestBoundingBoxNearPoles(t *testing.T) {
	_, _, minLon, maxLon := boundingBox(89.9999, 0, 10)
	if minLon > -180 || maxLon < 180 {
		t.Errorf("Expected longitude clamped to full range near pole, got [%f, %f]", minLon, maxLon)
	}
}
