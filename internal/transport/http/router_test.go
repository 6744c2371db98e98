package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"drill-service/internal/app"
	"drill-service/internal/domain"
	"drill-service/internal/infra/memory"
	"drill-service/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router *gin.Engine
	auth   *Authenticator
}

func newTestEnv(t *testing.T, secret string) *testEnv {
	t.Helper()
	store := memory.NewDefinitionStore(fireDrill())
	cache := memory.NewDefinitionRepository(store, time.Minute)
	attempts := memory.NewAttemptStore()
	progressions := memory.NewProgressionStore()
	stats := memory.NewStatsRecorder()

	progression := app.NewProgressionService(progressions, nil)
	boards := app.NewLeaderboardService(attempts, progressions, stats)
	hub := app.NewLeaderboardHub(boards, 10, nil)
	collector := metrics.NewCollector()
	engine := app.NewDrillEngine(cache, attempts, progression, memory.NewKeyedLocker(),
		app.WithPublisher(app.FanoutPublisher{hub}),
		app.WithStats(stats),
		app.WithMetrics(collector),
	)
	auth := NewAuthenticator(secret)
	router := NewRouter(Deps{
		Engine:       engine,
		Catalog:      app.NewCatalogService(store, cache, nil).WithStats(stats),
		Progression:  progression,
		Leaderboards: boards,
		Hub:          hub,
		Auth:         auth,
		Metrics:      collector,
	})
	return &testEnv{router: router, auth: auth}
}

// do sends a request as user (with the given role) using identity headers.
func (e *testEnv) do(t *testing.T, method, path, user, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	if role != "" {
		req.Header.Set("X-User-Role", role)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, rec.Code, rec.Body.String())
	}
	if code == "" {
		return
	}
	body := decode[errorBody](t, rec)
	if body.Code != code {
		t.Fatalf("expected code %q, got %q", code, body.Code)
	}
}

func TestDrillFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPost, "/api/users/me", "u1", "", registerRequest{Region: "north"})
	expectStatus(t, rec, http.StatusOK, "")

	rec = env.do(t, http.MethodGet, "/api/drills?type=fire", "u1", "", nil)
	expectStatus(t, rec, http.StatusOK, "")
	if strings.Contains(rec.Body.String(), "isCorrect") || strings.Contains(rec.Body.String(), "feedback") {
		t.Fatalf("catalog leaked answer data: %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodPost, "/api/drills/fire-1/start", "u1", "", nil)
	expectStatus(t, rec, http.StatusCreated, "")
	started := decode[app.StartResult](t, rec)
	if started.AttemptNumber != 1 || len(started.Scenarios) != 4 {
		t.Fatalf("unexpected start %+v", started)
	}

	base := "/api/attempts/" + started.AttemptID
	for i := 0; i < 4; i++ {
		rec = env.do(t, http.MethodPost, base+"/respond", "u1", "", map[string]int{
			"scenarioIndex": i, "selectedOption": 1, "timeSpent": 10,
		})
		expectStatus(t, rec, http.StatusOK, "")
		out := decode[domain.ResponseOutcome](t, rec)
		if !out.IsCorrect || out.PointsEarned != 25 {
			t.Fatalf("scenario %d: unexpected outcome %+v", i, out)
		}
	}

	rec = env.do(t, http.MethodPost, base+"/complete", "u1", "", nil)
	expectStatus(t, rec, http.StatusOK, "")
	done := decode[completionResponse](t, rec)
	if done.Score != 100 || !done.Passed || !done.CertificateIssued {
		t.Fatalf("unexpected completion %+v", done)
	}
	if done.PointsAwarded != 50 || done.MaxPossiblePoints != 100 || done.TotalTimeSpent != 40 {
		t.Fatalf("unexpected reward fields %+v", done)
	}
	if len(done.NewBadges) != 2 || done.NewBadges[0] != domain.BadgeFirstDrill || done.NewBadges[1] != domain.BadgeFireSafetyPro {
		t.Fatalf("expected first-drill and fire-safety-pro, got %v", done.NewBadges)
	}

	rec = env.do(t, http.MethodPost, base+"/complete", "u1", "", nil)
	expectStatus(t, rec, http.StatusConflict, "invalid_state")

	rec = env.do(t, http.MethodGet, "/api/users/me/progress", "u1", "", nil)
	expectStatus(t, rec, http.StatusOK, "")
	progress := decode[progressResponse](t, rec)
	if progress.Points != 50 || len(progress.BadgeDetails) == 0 {
		t.Fatalf("unexpected progress %+v", progress)
	}
	if progress.LevelProgress.PointsToNext != 50 {
		t.Fatalf("expected 50 points to level 2, got %+v", progress.LevelProgress)
	}

	rec = env.do(t, http.MethodGet, "/api/drills/fire-1/leaderboard", "u2", "", nil)
	expectStatus(t, rec, http.StatusOK, "")
	lb := decode[domain.DrillLeaderboard](t, rec)
	if len(lb.Entries) != 1 || lb.Entries[0].UserID != "u1" || lb.Entries[0].BestScore != 100 {
		t.Fatalf("unexpected drill leaderboard %+v", lb)
	}

	rec = env.do(t, http.MethodGet, "/api/users/me/attempts", "u1", "", nil)
	expectStatus(t, rec, http.StatusOK, "")
	if !strings.Contains(rec.Body.String(), started.AttemptID) {
		t.Fatalf("history missing attempt: %s", rec.Body.String())
	}
}

func TestAttemptErrorsMapToStatus(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPost, "/api/drills/fire-1/start", "ghost", "", nil)
	expectStatus(t, rec, http.StatusNotFound, "user_not_found")

	env.do(t, http.MethodPost, "/api/users/me", "u1", "", nil)
	rec = env.do(t, http.MethodPost, "/api/drills/missing/start", "u1", "", nil)
	expectStatus(t, rec, http.StatusNotFound, "drill_not_found")

	rec = env.do(t, http.MethodPost, "/api/drills/fire-1/start", "u1", "", nil)
	id := decode[app.StartResult](t, rec).AttemptID
	base := "/api/attempts/" + id

	rec = env.do(t, http.MethodPost, base+"/respond", "u1", "", map[string]int{"scenarioIndex": 2, "selectedOption": 0})
	expectStatus(t, rec, http.StatusConflict, "scenario_mismatch")

	rec = env.do(t, http.MethodPost, base+"/respond", "u1", "", map[string]int{"scenarioIndex": 0, "selectedOption": 7})
	expectStatus(t, rec, http.StatusBadRequest, "invalid_option")

	rec = env.do(t, http.MethodPost, base+"/respond", "u1", "", map[string]int{"scenarioIndex": 0})
	expectStatus(t, rec, http.StatusBadRequest, "bad_request")

	rec = env.do(t, http.MethodGet, base, "intruder", "", nil)
	expectStatus(t, rec, http.StatusNotFound, "attempt_not_found")

	rec = env.do(t, http.MethodPost, base+"/abandon", "u1", "", nil)
	expectStatus(t, rec, http.StatusOK, "")

	env.do(t, http.MethodPost, "/api/drills/fire-1/start", "u1", "", nil)
	env.do(t, http.MethodPost, "/api/drills/fire-1/start", "u1", "", nil)
	rec = env.do(t, http.MethodPost, "/api/drills/fire-1/start", "u1", "", nil)
	expectStatus(t, rec, http.StatusForbidden, "attempt_limit_exceeded")
	if body := decode[errorBody](t, rec); body.Max != 3 {
		t.Fatalf("expected maxAttempts 3 in body, got %+v", body)
	}
}

func TestAuthoringRequiresRole(t *testing.T) {
	env := newTestEnv(t, "")
	def := fireDrill()
	def.ID = ""
	def.Title = "Wildfire evacuation"

	rec := env.do(t, http.MethodPost, "/api/drills", "s1", RoleStudent, def)
	expectStatus(t, rec, http.StatusForbidden, "forbidden")

	rec = env.do(t, http.MethodPost, "/api/drills", "t1", RoleTeacher, def)
	expectStatus(t, rec, http.StatusCreated, "")
	created := decode[domain.DrillDefinition](t, rec)
	if created.ID == "" || created.Version != 1 || created.CreatedBy != "t1" {
		t.Fatalf("unexpected created drill %+v", created)
	}

	bad := def
	bad.Title = "Fire"
	rec = env.do(t, http.MethodPost, "/api/drills", "t1", RoleTeacher, bad)
	expectStatus(t, rec, http.StatusBadRequest, "validation_failed")
	if body := decode[errorBody](t, rec); body.Field != "title" {
		t.Fatalf("expected title field error, got %+v", body)
	}

	rec = env.do(t, http.MethodGet, "/api/drills/fire-1/analytics", "s1", RoleStudent, nil)
	expectStatus(t, rec, http.StatusForbidden, "forbidden")
	rec = env.do(t, http.MethodGet, "/api/drills/fire-1/analytics", "a1", RoleAdmin, nil)
	expectStatus(t, rec, http.StatusOK, "")

	rec = env.do(t, http.MethodPost, "/api/admin/users/s1/points", "t1", RoleTeacher, pointsRequest{Points: 10})
	expectStatus(t, rec, http.StatusForbidden, "forbidden")
}

func TestAdminProgressionEndpoints(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/users/me", "u1", "", registerRequest{Region: "south"})

	rec := env.do(t, http.MethodPost, "/api/admin/users/u1/points", "a1", RoleAdmin, pointsRequest{Points: 260})
	expectStatus(t, rec, http.StatusOK, "")
	level := decode[map[string]domain.Level](t, rec)["level"]
	if level.Number != 2 {
		t.Fatalf("expected level 2, got %+v", level)
	}

	rec = env.do(t, http.MethodPost, "/api/admin/users/u1/badges", "a1", RoleAdmin, badgeRequest{Badge: "made-up"})
	expectStatus(t, rec, http.StatusBadRequest, "unknown_badge")

	rec = env.do(t, http.MethodPost, "/api/admin/users/u1/badges", "a1", RoleAdmin, badgeRequest{Badge: domain.BadgeSafetyAmbassador})
	expectStatus(t, rec, http.StatusOK, "")

	rec = env.do(t, http.MethodPost, "/api/admin/users/nobody/points", "a1", RoleAdmin, pointsRequest{Points: 5})
	expectStatus(t, rec, http.StatusNotFound, "user_not_found")

	rec = env.do(t, http.MethodPost, "/api/users/me/modules/m1/complete", "u1", "", map[string]int{"score": 90})
	expectStatus(t, rec, http.StatusOK, "")
	res := decode[domain.ModuleResult](t, rec)
	if !res.FirstTime || res.BonusAwarded != 50 {
		t.Fatalf("unexpected module result %+v", res)
	}

	rec = env.do(t, http.MethodGet, "/api/leaderboard?region=south", "u2", "", nil)
	expectStatus(t, rec, http.StatusOK, "")
	lb := decode[domain.PointsLeaderboard](t, rec)
	if len(lb.Entries) != 1 || lb.Entries[0].Points != 310 {
		t.Fatalf("unexpected points leaderboard %+v", lb)
	}
}

func TestJWTAuthentication(t *testing.T) {
	env := newTestEnv(t, "top-secret")

	rec := env.do(t, http.MethodGet, "/api/drills", "u1", "", nil)
	expectStatus(t, rec, http.StatusUnauthorized, "unauthorized")

	token, err := env.auth.Sign(Identity{UserID: "u1"}, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/drills", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusOK, "")

	req = httptest.NewRequest(http.MethodGet, "/api/drills?token="+token, nil)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusOK, "")

	forged, _ := NewAuthenticator("other").Sign(Identity{UserID: "u1", Role: RoleAdmin}, jwt.RegisteredClaims{})
	req = httptest.NewRequest(http.MethodGet, "/api/drills", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusUnauthorized, "unauthorized")

	expired, _ := env.auth.Sign(Identity{UserID: "u1"}, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	req = httptest.NewRequest(http.MethodGet, "/api/drills", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	expectStatus(t, rec, http.StatusUnauthorized, "unauthorized")
}

func TestPopularDrillsAndOverview(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/users/me", "u1", "", nil)
	rec := env.do(t, http.MethodPost, "/api/drills/fire-1/start", "u1", "", nil)
	expectStatus(t, rec, http.StatusCreated, "")
	started := decode[app.StartResult](t, rec)
	rec = env.do(t, http.MethodPost, "/api/attempts/"+started.AttemptID+"/complete", "u1", "", nil)
	expectStatus(t, rec, http.StatusOK, "")

	rec = env.do(t, http.MethodGet, "/api/drills/popular?limit=5", "u1", "", nil)
	expectStatus(t, rec, http.StatusOK, "")
	popular := decode[struct {
		Drills []domain.PopularDrill `json:"drills"`
	}](t, rec)
	if len(popular.Drills) != 1 || popular.Drills[0].ID != "fire-1" || popular.Drills[0].Statistics.TotalAttempts != 1 {
		t.Fatalf("unexpected popular drills %+v", popular.Drills)
	}
	if strings.Contains(rec.Body.String(), "isCorrect") {
		t.Fatalf("popular listing leaked answer data: %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/drills/stats/overview", "u1", RoleStudent, nil)
	expectStatus(t, rec, http.StatusForbidden, "forbidden")

	rec = env.do(t, http.MethodGet, "/api/drills/stats/overview", "t1", RoleTeacher, nil)
	expectStatus(t, rec, http.StatusOK, "")
	overview := decode[struct {
		Stats []domain.TypeOverview `json:"stats"`
	}](t, rec)
	if len(overview.Stats) != 1 {
		t.Fatalf("expected one drill type, got %+v", overview.Stats)
	}
	fire := overview.Stats[0]
	if fire.Type != domain.DrillFire || fire.Count != 1 || fire.TotalAttempts != 1 || fire.TotalCompletions != 1 || fire.SuccessRate != 100 {
		t.Fatalf("unexpected overview %+v", fire)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, "")
	rec := env.do(t, http.MethodGet, "/healthz", "", "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}

	env.do(t, http.MethodGet, "/api/drills", "u1", "", nil)
	rec = env.do(t, http.MethodGet, "/metrics", "", "", nil)
	if !strings.Contains(rec.Body.String(), `route="/api/drills"`) {
		t.Fatalf("expected request metrics, got:\n%s", rec.Body.String())
	}
}

func TestStatusForInternalErrors(t *testing.T) {
	status, body := errorBodyFor(fmt.Errorf("query: %w", errors.New("connection reset")))
	if status != http.StatusInternalServerError || body.Code != "internal" || body.Error != "internal server error" {
		t.Fatalf("internal errors must not leak details: %d %+v", status, body)
	}
	status, _ = errorBodyFor(fmt.Errorf("save: %w", domain.ErrConflict))
	if status != http.StatusConflict {
		t.Fatalf("expected 409 for wrapped conflict, got %d", status)
	}
}

func fireDrill() domain.DrillDefinition {
	def := domain.DrillDefinition{
		ID:           "fire-1",
		Title:        "Kitchen fire response",
		Type:         domain.DrillFire,
		Difficulty:   domain.DifficultyMedium,
		Regions:      []string{domain.RegionAll},
		PassingScore: 70,
		MaxAttempts:  3,
		Version:      1,
	}
	for i := 0; i < 4; i++ {
		def.Scenarios = append(def.Scenarios, domain.Scenario{
			Title:     fmt.Sprintf("Step %d", i+1),
			TimeLimit: 30,
			Order:     i + 1,
			Options: []domain.ScenarioOption{
				{Text: "Wrong", Feedback: "Not safe"},
				{Text: "Right", IsCorrect: true, Points: 25, Feedback: "Correct"},
			},
		})
	}
	return def
}
