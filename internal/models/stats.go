package models

import "time"

// Status is the canonical outcome of one provider fetch.
type Status string

const (
	StatusOK       Status = "ok"
	StatusPrivate  Status = "private"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusPrivate, StatusNotFound, StatusError:
		return true
	}
	return false
}

// StatPayload holds the per-category second breakdowns returned by the provider.
type StatPayload struct {
	Editors   map[string]int64 `json:"editors,omitempty"`
	Languages map[string]int64 `json:"languages,omitempty"`
	Projects  map[string]int64 `json:"projects,omitempty"`
}

// Clone returns a deep copy of p. A nil payload clones to nil.
func (p *StatPayload) Clone() *StatPayload {
	if p == nil {
		return nil
	}
	return &StatPayload{
		Editors:   cloneSeconds(p.Editors),
		Languages: cloneSeconds(p.Languages),
		Projects:  cloneSeconds(p.Projects),
	}
}

// Add merges other into p, summing seconds per name.
func (p *StatPayload) Add(other *StatPayload) {
	if other == nil {
		return
	}
	p.Editors = addSeconds(p.Editors, other.Editors)
	p.Languages = addSeconds(p.Languages, other.Languages)
	p.Projects = addSeconds(p.Projects, other.Projects)
}

func cloneSeconds(in map[string]int64) map[string]int64 {
	if in == nil {
		return nil
	}
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func addSeconds(dst, src map[string]int64) map[string]int64 {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]int64, len(src))
	}
	for k, v := range src {
		dst[k] += v
	}
	return dst
}

// StatCore is the part shared by daily and weekly fetch results.
type StatCore struct {
	UserID       int64        `json:"user_id"`
	Username     string       `json:"username"`
	TotalSeconds int64        `json:"total_seconds"`
	Status       Status       `json:"status"`
	Error        string       `json:"error,omitempty"`
	FetchedAt    time.Time    `json:"fetched_at"`
	Payload      *StatPayload `json:"payload,omitempty"`
}

// Core lets generic ranking code read the shared fields of any stat.
func (c StatCore) Core() StatCore { return c }

// DailyStat is one user's result for a calendar date in their time zone.
type DailyStat struct {
	StatCore
	DateKey string `json:"date_key"`
}

// WeeklyStat is one user's result for the provider's rolling range.
type WeeklyStat struct {
	StatCore
	RangeKey            string `json:"range_key"`
	DailyAverageSeconds int64  `json:"daily_average_seconds"`
}

// FetchResult is what the provider client hands back for a single call.
type FetchResult struct {
	Status              Status
	TotalSeconds        int64
	DailyAverageSeconds int64
	Payload             *StatPayload
	Error               string
}

// Core builds the shared stat fields for a user from a fetch result.
func (r FetchResult) Core(userID int64, username string, fetchedAt time.Time) StatCore {
	core := StatCore{
		UserID:    userID,
		Username:  username,
		Status:    r.Status,
		Error:     r.Error,
		FetchedAt: fetchedAt,
	}
	if r.Status == StatusOK {
		core.TotalSeconds = r.TotalSeconds
		core.Payload = r.Payload
	}
	if core.TotalSeconds < 0 {
		core.TotalSeconds = 0
	}
	return core
}
