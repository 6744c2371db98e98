package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"drill-service/internal/domain"
)

func TestCollectorCountsEngineEvents(t *testing.T) {
	c := NewCollector()

	c.AttemptStarted(domain.DrillFire)
	c.AttemptStarted(domain.DrillFire)
	c.ResponseRecorded(domain.DrillFire, true)
	c.ResponseRecorded(domain.DrillFire, false)
	c.ResponseRecorded(domain.DrillFire, true)
	c.AttemptFinished(domain.DrillFire, domain.EventAttemptCompleted, 75)
	c.AttemptFinished(domain.DrillFire, domain.EventAttemptAbandoned, 0)

	if got := testutil.ToFloat64(c.attemptsStarted.WithLabelValues("fire")); got != 2 {
		t.Fatalf("expected 2 starts, got %v", got)
	}
	if got := testutil.ToFloat64(c.responses.WithLabelValues("fire", "true")); got != 2 {
		t.Fatalf("expected 2 correct responses, got %v", got)
	}
	if got := testutil.ToFloat64(c.attemptsFinished.WithLabelValues("fire", "drill.attempt.abandoned")); got != 1 {
		t.Fatalf("expected 1 abandoned, got %v", got)
	}
	// Abandoned attempts carry no score.
	if n := testutil.CollectAndCount(c.scores); n != 1 {
		t.Fatalf("expected one score series, got %d", n)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	c := NewCollector()
	c.ObserveRequest("GET", "/api/drills", 200, 15*time.Millisecond)
	c.ObserveRequest("GET", "", 404, time.Millisecond)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		`drill_http_requests_total{method="GET",route="/api/drills",status="200"} 1`,
		`drill_http_requests_total{method="GET",route="unmatched",status="404"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in scrape output", want)
		}
	}
}
