package store

import (
	"context"
	"sort"
	"sync"

	"github.com/devpulse/stats-api/internal/models"
)

type dailyKey struct {
	userID  int64
	dateKey string
}

type weeklyKey struct {
	userID   int64
	rangeKey string
}

type grantKey struct {
	userID        int64
	achievementID string
	kind          models.ContextKind
	contextKey    string
}

// MemoryStore is an in-process Store used by tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	users   map[int64]models.User
	follows map[int64]map[int64]struct{}
	daily   map[dailyKey]models.DailyStat
	weekly  map[weeklyKey]models.WeeklyStat
	grants  map[grantKey]models.AchievementGrant

	// Hook, when set, runs before every operation; a non-nil return value
	// is returned from the operation instead.
	Hook func(op string) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[int64]models.User),
		follows: make(map[int64]map[int64]struct{}),
		daily:   make(map[dailyKey]models.DailyStat),
		weekly:  make(map[weeklyKey]models.WeeklyStat),
		grants:  make(map[grantKey]models.AchievementGrant),
	}
}

func (m *MemoryStore) hook(op string) error {
	if m.Hook == nil {
		return nil
	}
	return m.Hook(op)
}

// PutUser inserts or replaces a user.
func (m *MemoryStore) PutUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

// Follow records that userID follows friendID.
func (m *MemoryStore) Follow(userID, friendID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.follows[userID] == nil {
		m.follows[userID] = make(map[int64]struct{})
	}
	m.follows[userID][friendID] = struct{}{}
}

// GrantCount returns the number of stored grant rows.
func (m *MemoryStore) GrantCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.grants)
}

func (m *MemoryStore) username(userID int64) string {
	return m.users[userID].Username
}

func (m *MemoryStore) UpsertDailyStat(ctx context.Context, stat models.DailyStat) error {
	if err := m.hook("UpsertDailyStat"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stat.Payload = stat.Payload.Clone()
	m.daily[dailyKey{stat.UserID, stat.DateKey}] = stat
	return nil
}

func (m *MemoryStore) GetDailyStats(ctx context.Context, userIDs []int64, dateKey string) ([]models.DailyStat, error) {
	if err := m.hook("GetDailyStats"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DailyStat
	for _, id := range userIDs {
		if s, ok := m.daily[dailyKey{id, dateKey}]; ok {
			s.Username = m.username(id)
			s.Payload = s.Payload.Clone()
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) UpsertWeeklyStat(ctx context.Context, stat models.WeeklyStat) error {
	if err := m.hook("UpsertWeeklyStat"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stat.Payload = stat.Payload.Clone()
	m.weekly[weeklyKey{stat.UserID, stat.RangeKey}] = stat
	return nil
}

func (m *MemoryStore) GetWeeklyStats(ctx context.Context, userIDs []int64, rangeKey string) ([]models.WeeklyStat, error) {
	if err := m.hook("GetWeeklyStats"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.WeeklyStat
	for _, id := range userIDs {
		if s, ok := m.weekly[weeklyKey{id, rangeKey}]; ok {
			s.Username = m.username(id)
			s.Payload = s.Payload.Clone()
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListDailyHistory(ctx context.Context) ([]models.DailyStat, error) {
	if err := m.hook("ListDailyHistory"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.DailyStat, 0, len(m.daily))
	for _, s := range m.daily {
		s.Username = m.username(s.UserID)
		s.Payload = s.Payload.Clone()
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].DateKey < out[j].DateKey
	})
	return out, nil
}

func (m *MemoryStore) ListWeeklyHistory(ctx context.Context) ([]models.WeeklyStat, error) {
	if err := m.hook("ListWeeklyHistory"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.WeeklyStat, 0, len(m.weekly))
	for _, s := range m.weekly {
		s.Username = m.username(s.UserID)
		s.Payload = s.Payload.Clone()
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].RangeKey < out[j].RangeKey
	})
	return out, nil
}

func (m *MemoryStore) GrantAchievement(ctx context.Context, grant models.AchievementGrant) (bool, error) {
	if err := m.hook("GrantAchievement"); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := grantKey{grant.UserID, grant.AchievementID, grant.ContextKind, grant.ContextKey}
	_, exists := m.grants[key]
	m.grants[key] = grant
	return !exists, nil
}

func (m *MemoryStore) ListAchievementUnlocks(ctx context.Context, userID int64) ([]models.AchievementUnlock, error) {
	if err := m.hook("ListAchievementUnlocks"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := make(map[string]*models.AchievementUnlock)
	for key, g := range m.grants {
		if key.userID != userID {
			continue
		}
		u, ok := byID[g.AchievementID]
		if !ok {
			u = &models.AchievementUnlock{AchievementID: g.AchievementID, FirstAwardedAt: g.AwardedAt, LastAwardedAt: g.AwardedAt}
			byID[g.AchievementID] = u
		}
		u.Count++
		if g.AwardedAt.Before(u.FirstAwardedAt) {
			u.FirstAwardedAt = g.AwardedAt
		}
		if g.AwardedAt.After(u.LastAwardedAt) {
			u.LastAwardedAt = g.AwardedAt
		}
	}
	out := make([]models.AchievementUnlock, 0, len(byID))
	for _, u := range byID {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AchievementID < out[j].AchievementID })
	return out, nil
}

func (m *MemoryStore) ListAchievementGrants(ctx context.Context, filter GrantFilter) ([]models.AchievementGrant, error) {
	if err := m.hook("ListAchievementGrants"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make(map[int64]struct{}, len(filter.UserIDs))
	for _, id := range filter.UserIDs {
		users[id] = struct{}{}
	}
	achievements := make(map[string]struct{}, len(filter.AchievementIDs))
	for _, id := range filter.AchievementIDs {
		achievements[id] = struct{}{}
	}

	var out []models.AchievementGrant
	for _, g := range m.grants {
		if _, ok := users[g.UserID]; !ok {
			continue
		}
		if len(achievements) > 0 {
			if _, ok := achievements[g.AchievementID]; !ok {
				continue
			}
		}
		if filter.ContextKind != "" && g.ContextKind != filter.ContextKind {
			continue
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.AchievementID != b.AchievementID {
			return a.AchievementID < b.AchievementID
		}
		if a.ContextKind != b.ContextKind {
			return a.ContextKind < b.ContextKind
		}
		return a.ContextKey < b.ContextKey
	})
	return out, nil
}

func (m *MemoryStore) ListSyncUsers(ctx context.Context) ([]models.User, error) {
	if err := m.hook("ListSyncUsers"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, u := range m.users {
		if u.APIKey != "" {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetUser(ctx context.Context, userID int64) (models.User, error) {
	if err := m.hook("GetUser"); err != nil {
		return models.User{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (m *MemoryStore) ListCandidates(ctx context.Context, viewerID int64) ([]models.Candidate, error) {
	if err := m.hook("ListCandidates"); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Candidate
	for id, u := range m.users {
		_, followed := m.follows[viewerID][id]
		if id != viewerID && !followed {
			continue
		}
		_, back := m.follows[id][viewerID]
		out = append(out, models.Candidate{User: u, IsFriend: back})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
