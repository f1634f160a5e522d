package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/devpulse/stats-api/internal/logic"
	"github.com/devpulse/stats-api/internal/models"
	"github.com/devpulse/stats-api/internal/store"
	"github.com/devpulse/stats-api/internal/worker"
)

// MockSyncService serves stats from maps and records manual syncs.
type MockSyncService struct {
	Range   string
	Weekly  map[int64]models.WeeklyStat
	Daily   map[int64]models.DailyStat
	SyncErr error

	SyncedUser   models.User
	SyncedBypass bool
	SyncCalls    int
	DailyKey     string
	DailyKeys    []string
}

func (m *MockSyncService) RangeKey() string { return m.Range }

func (m *MockSyncService) GetStats(userIDs []int64, rangeKey string) []models.WeeklyStat {
	var out []models.WeeklyStat
	for _, id := range userIDs {
		if s, ok := m.Weekly[id]; ok && s.RangeKey == rangeKey {
			out = append(out, s)
		}
	}
	return out
}

func (m *MockSyncService) GetDailyStats(ctx context.Context, userIDs []int64, dateKey string) ([]models.DailyStat, error) {
	m.DailyKey = dateKey
	m.DailyKeys = append(m.DailyKeys, dateKey)
	var out []models.DailyStat
	for _, id := range userIDs {
		if s, ok := m.Daily[id]; ok && s.DateKey == dateKey {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MockSyncService) SyncUser(ctx context.Context, u models.User, bypassCache bool) (worker.SyncResult, error) {
	m.SyncCalls++
	m.SyncedUser, m.SyncedBypass = u, bypassCache
	return worker.SyncResult{
		Daily:  models.DailyStat{StatCore: models.StatCore{UserID: u.ID, Username: u.Username, Status: models.StatusOK, TotalSeconds: 60}},
		Weekly: models.WeeklyStat{StatCore: models.StatCore{UserID: u.ID, Username: u.Username, Status: models.StatusOK, TotalSeconds: 600}},
	}, m.SyncErr
}

type stubDepth int

func (s stubDepth) QueueDepth() int { return int(s) }

var testNow = time.Date(2024, 3, 6, 15, 0, 0, 0, time.UTC)

// newTestHandler wires a handler over a memory store seeded with a small
// social graph: alice(1) and bob(2) are friends, alice follows carol(3)
// one way, dave(4) follows nobody, erin(5) opted out of competing.
func newTestHandler(t *testing.T) (*Handler, *store.MemoryStore, *MockSyncService) {
	t.Helper()
	st := store.NewMemoryStore()
	st.PutUser(models.User{ID: 1, Username: "alice", APIKey: "k1", TimeZone: "UTC", Visibility: models.VisibilityEveryone, Competing: true})
	st.PutUser(models.User{ID: 2, Username: "bob", APIKey: "k2", TimeZone: "UTC", Visibility: models.VisibilityFriends, Competing: true})
	st.PutUser(models.User{ID: 3, Username: "carol", APIKey: "k3", TimeZone: "UTC", Visibility: models.VisibilityFriends, Competing: true})
	st.PutUser(models.User{ID: 4, Username: "dave", TimeZone: "UTC", Visibility: models.VisibilityNoOne, Competing: true})
	st.PutUser(models.User{ID: 5, Username: "erin", APIKey: "k5", TimeZone: "UTC", Visibility: models.VisibilityEveryone, Competing: false})
	st.Follow(1, 2)
	st.Follow(2, 1)
	st.Follow(1, 3)
	st.Follow(1, 5)

	sync := &MockSyncService{Range: worker.DefaultRangeKey}
	h := New(Config{
		Store:          st,
		Sync:           sync,
		Archive:        stubDepth(0),
		Clock:          logic.FixedClock{T: testNow},
		DeltaThreshold: logic.DefaultDeltaThreshold,
		Logger:         zap.NewNop(),
	})
	return h, st, sync
}

func weekly(id int64, name string, status models.Status, seconds int64) models.WeeklyStat {
	return models.WeeklyStat{
		StatCore: models.StatCore{UserID: id, Username: name, Status: status, TotalSeconds: seconds},
		RangeKey: worker.DefaultRangeKey,
	}
}

func daily(id int64, name, dateKey string, seconds int64) models.DailyStat {
	return models.DailyStat{
		StatCore: models.StatCore{UserID: id, Username: name, Status: models.StatusOK, TotalSeconds: seconds},
		DateKey:  dateKey,
	}
}

func doRequest(h *Handler, method, path string, viewer int64, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if viewer != 0 {
		req.Header.Set(ViewerHeader, strconv.FormatInt(viewer, 10))
	}
	w := httptest.NewRecorder()
	h.Router([]string{"*"}).ServeHTTP(w, req)
	return w
}
