package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citizen-reporting-system/pkg/leaderboard"
	"citizen-reporting-system/pkg/middleware"
	"citizen-reporting-system/pkg/models"
	"citizen-reporting-system/pkg/push"
	"citizen-reporting-system/pkg/reportview"
	"citizen-reporting-system/pkg/shift"
	"citizen-reporting-system/pkg/staging"
)

const testSecret = "test-secret"

type staticLister struct{ reports []models.Report }

func (l staticLister) List(_ context.Context, f models.FilterState) ([]models.Report, error) {
	var out []models.Report
	for _, r := range l.reports {
		if reportview.Matches(r, f) {
			out = append(out, r)
		}
	}
	return out, nil
}

type staticStandings []models.Standing

func (s staticStandings) ListRanked(context.Context, models.LeaderboardScope) ([]models.Standing, error) {
	return s, nil
}

type noSchedules struct{}

func (noSchedules) ListByDate(context.Context, time.Time) ([]models.DutySchedule, error) {
	return nil, nil
}

func newTestServer(t *testing.T) *server {
	t.Helper()
	log, _ := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)

	srv := &server{
		log:  log,
		auth: middleware.NewAuthenticator(testSecret),
		hub:  push.NewHub(log),
		lister: staticLister{reports: []models.Report{
			{ID: "a", Title: "Sampah", Category: "Sampah", Status: models.StatusPending, IsPublic: true},
			{ID: "b", Title: "Lampu", Category: "Lampu Jalan", Status: models.StatusResolved, IsPublic: true},
		}},
		slots:       staging.NewMemoryFactory(),
		leaderboard: leaderboard.NewCache(staticStandings{{UserID: "u-1", Score: 12}, {UserID: "u-2", Score: 30}}),
		shifts:      shift.NewService(shift.NewClassifier(), noSchedules{}, log),
	}
	srv.sessions = newSessions(srv.openView)
	t.Cleanup(srv.sessions.closeAll)
	return srv
}

func token(t *testing.T, userID, role string) string {
	t.Helper()
	claims := middleware.UserClaims{
		UserID: userID,
		Name:   "Ani",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func do(t *testing.T, h http.Handler, method, path, tok, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, into))
}

func TestSessions_RefCounted(t *testing.T) {
	srv := newTestServer(t)

	v1 := srv.sessions.acquire(context.Background(), "u-1")
	v2 := srv.sessions.acquire(context.Background(), "u-1")
	assert.Same(t, v1, v2)
	assert.Equal(t, 1, srv.sessions.count())
	assert.Equal(t, 4, srv.hub.Subscribers())

	srv.sessions.release("u-1")
	assert.Equal(t, 1, srv.sessions.count())
	srv.sessions.release("u-1")
	assert.Zero(t, srv.sessions.count())
	assert.Zero(t, srv.hub.Subscribers())
	v1.Wait()
}

// blockingSlot holds ReadAndClear until release is closed.
type blockingSlot struct {
	entered chan struct{}
	release chan struct{}
}

func (s *blockingSlot) Write(context.Context, []byte) error { return nil }

func (s *blockingSlot) ReadAndClear(ctx context.Context) ([]byte, error) {
	close(s.entered)
	<-s.release
	return nil, staging.ErrEmpty
}

func TestSessions_SlowOpenDoesNotBlockOthers(t *testing.T) {
	srv := newTestServer(t)
	slow := &blockingSlot{entered: make(chan struct{}), release: make(chan struct{})}
	srv.slots = func(userID string) staging.Slot {
		if userID == "slow" {
			return slow
		}
		return &staging.MemorySlot{}
	}

	opened := make(chan *reportview.View)
	go func() { opened <- srv.sessions.acquire(context.Background(), "slow") }()
	<-slow.entered

	fast := make(chan *reportview.View)
	go func() { fast <- srv.sessions.acquire(context.Background(), "fast") }()
	select {
	case v := <-fast:
		require.NotNil(t, v)
	case <-time.After(2 * time.Second):
		t.Fatal("acquire for another user waited on a slow open")
	}
	_, ok := srv.sessions.get("fast")
	assert.True(t, ok)
	assert.Equal(t, 2, srv.sessions.count())

	close(slow.release)
	v := <-opened
	got, ok := srv.sessions.get("slow")
	require.True(t, ok)
	assert.Same(t, v, got)

	srv.sessions.release("slow")
	srv.sessions.release("fast")
	assert.Zero(t, srv.sessions.count())
}

func TestViewEndpoints(t *testing.T) {
	srv := newTestServer(t)
	h := srv.routes()
	tok := token(t, "u-1", "citizen")

	t.Run("no open view", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/view", tok, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/view", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	view := srv.sessions.acquire(context.Background(), "u-1")
	view.Wait()

	t.Run("snapshot", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/api/view", tok, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var state reportview.State
		decode(t, rec, &state)
		assert.Len(t, state.Reports, 2)
	})

	t.Run("filter", func(t *testing.T) {
		rec := do(t, h, http.MethodPut, "/api/view/filter", tok, `{"status":"RESOLVED"}`)
		require.Equal(t, http.StatusAccepted, rec.Code)

		require.Eventually(t, func() bool {
			s := view.State()
			return len(s.Reports) == 1 && s.Reports[0].ID == "b"
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("invalid filter", func(t *testing.T) {
		rec := do(t, h, http.MethodPut, "/api/view/filter", tok, `{"status":"closed"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = do(t, h, http.MethodPut, "/api/view/filter", tok, `{"priority":"urgent"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("refresh", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/view/refresh", tok, "")
		assert.Equal(t, http.StatusAccepted, rec.Code)
		rec = do(t, h, http.MethodGet, "/api/view/refresh", tok, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestOptimisticEndpoint(t *testing.T) {
	srv := newTestServer(t)
	h := srv.routes()
	tok := token(t, "u-7", "citizen")

	rec := do(t, h, http.MethodPost, "/api/view/optimistic", tok, `{"title":"Got mampet","category":"Drainase"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var out struct {
		Marker string `json:"marker"`
		ViewID string `json:"view_id"`
	}
	decode(t, rec, &out)
	require.NotEmpty(t, out.Marker)

	view := srv.sessions.acquire(context.Background(), "u-7")
	state := view.State()
	require.NotEmpty(t, state.Reports)
	found := false
	for _, r := range state.Reports {
		if r.ID == out.ViewID {
			found = true
			assert.Equal(t, "Ani", r.Reporter)
		}
	}
	assert.True(t, found, "staged report shown by the next view")

	t.Run("private submission is not shown", func(t *testing.T) {
		tok := token(t, "u-8", "citizen")
		rec := do(t, h, http.MethodPost, "/api/view/optimistic", tok, `{"title":"Rahasia","category":"Sampah","privacy":"private"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
		var staged struct {
			ViewID string `json:"view_id"`
		}
		decode(t, rec, &staged)

		view := srv.sessions.acquire(context.Background(), "u-8")
		defer srv.sessions.release("u-8")
		for _, r := range view.State().Reports {
			assert.NotEqual(t, staged.ViewID, r.ID)
		}
	})

	t.Run("requires title and category", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/api/view/optimistic", tok, `{"title":""}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLeaderboardEndpoint(t *testing.T) {
	srv := newTestServer(t)
	h := srv.routes()
	tok := token(t, "u-1", "citizen")

	rec := do(t, h, http.MethodGet, "/api/leaderboard?scope=monthly", tok, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Scope   models.LeaderboardScope   `json:"scope"`
		Entries []models.LeaderboardEntry `json:"entries"`
	}
	decode(t, rec, &out)
	assert.Equal(t, models.ScopeMonthly, out.Scope)
	require.Len(t, out.Entries, 2)
	assert.Equal(t, "u-2", out.Entries[0].UserID)

	rec = do(t, h, http.MethodGet, "/api/leaderboard?scope=yearly", tok, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActiveShiftEndpoint(t *testing.T) {
	srv := newTestServer(t)
	h := srv.routes()

	rec := do(t, h, http.MethodGet, "/api/shifts/active", token(t, "u-1", "citizen"), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/shifts/active", token(t, "u-2", "admin"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var active shift.Active
	decode(t, rec, &active)
	assert.Zero(t, active.Count)
}

func TestStream(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/view/stream?token="+token(t, "u-1", "citizen"), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	waitFor := func(prefix string) string {
		t.Helper()
		timeout := time.After(2 * time.Second)
		for {
			select {
			case l, ok := <-lines:
				require.True(t, ok, "stream ended early")
				if strings.HasPrefix(l, prefix) {
					return l
				}
			case <-timeout:
				t.Fatalf("no %q line", prefix)
			}
		}
	}

	waitFor("event: connected")
	waitFor("event: snapshot")
	require.Eventually(t, func() bool { return srv.sessions.count() == 1 }, time.Second, 5*time.Millisecond)

	srv.hub.Publish(models.EventCreated{Report: models.Report{ID: "c", Category: "Sampah", Status: models.StatusPending, IsPublic: true}})
	found := false
	for i := 0; i < 5 && !found; i++ {
		found = strings.Contains(waitFor("data: "), `"id":"c"`)
	}
	assert.True(t, found, "created event streamed")

	cancel()
	require.Eventually(t, func() bool { return srv.sessions.count() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, srv.hub.Subscribers())
}

func TestNormalizeFilter(t *testing.T) {
	f, err := normalizeFilter(models.FilterState{Category: " Sampah  ", Status: "in-progress", Admitted: []models.Status{"PENDING"}, Priority: "High"})
	require.NoError(t, err)
	assert.Equal(t, "Sampah", f.Category)
	assert.Equal(t, models.StatusInProgress, f.Status)
	assert.Equal(t, []models.Status{models.StatusPending}, f.Admitted)
	assert.Equal(t, models.PriorityHigh, f.Priority)

	f, err = normalizeFilter(models.FilterState{Status: "all"})
	require.NoError(t, err)
	assert.Nil(t, f.Admitted)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv.routes(), http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "UP", body["status"])
}
