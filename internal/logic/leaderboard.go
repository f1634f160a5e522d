package logic

import (
	"sort"

	"github.com/devpulse/stats-api/internal/models"
)

// Stat is any fetch result that can be placed on a leaderboard.
type Stat interface {
	Core() models.StatCore
}

// RankedEntry is a stat annotated with its leaderboard position and its
// difference to the viewer's own total. It is derived on every read.
type RankedEntry[S Stat] struct {
	Stat         S     `json:"stat"`
	Rank         *int  `json:"rank"`
	DeltaSeconds int64 `json:"delta_seconds"`
}

type (
	LeaderboardEntry       = RankedEntry[models.DailyStat]
	WeeklyLeaderboardEntry = RankedEntry[models.WeeklyStat]
)

// Username is a shortcut for the entry's username.
func (e RankedEntry[S]) Username() string { return e.Stat.Core().Username }

// Ranked reports whether the entry received a rank.
func (e RankedEntry[S]) Ranked() bool { return e.Rank != nil }

func statusRank(s models.Status) int {
	switch s {
	case models.StatusOK:
		return 0
	case models.StatusPrivate:
		return 1
	case models.StatusNotFound:
		return 2
	default:
		return 3
	}
}

// lessStat orders by status, then seconds descending, then username.
func lessStat(a, b models.StatCore) bool {
	ra, rb := statusRank(a.Status), statusRank(b.Status)
	if ra != rb {
		return ra < rb
	}
	if a.TotalSeconds != b.TotalSeconds {
		return a.TotalSeconds > b.TotalSeconds
	}
	return a.Username < b.Username
}

// ComputeLeaderboard sorts stats into leaderboard order and assigns ranks
// and deltas relative to selfUsername.
//
// Ok entries share a rank when their seconds are equal ("1,1,3"), except
// when every ok entry is at zero: then ranks are sequential in sort order.
// Entries with any other status are unranked.
func ComputeLeaderboard[S Stat](stats []S, selfUsername string) []RankedEntry[S] {
	var selfTotal int64
	for _, s := range stats {
		if c := s.Core(); c.Username == selfUsername {
			selfTotal = c.TotalSeconds
			break
		}
	}

	sorted := make([]S, len(stats))
	copy(sorted, stats)
	sort.SliceStable(sorted, func(i, j int) bool {
		return lessStat(sorted[i].Core(), sorted[j].Core())
	})

	allZero := true
	for _, s := range sorted {
		if c := s.Core(); c.Status == models.StatusOK && c.TotalSeconds != 0 {
			allZero = false
			break
		}
	}

	out := make([]RankedEntry[S], 0, len(sorted))
	position := 0
	prevRank := 0
	var prevSeconds int64
	for _, s := range sorted {
		c := s.Core()
		entry := RankedEntry[S]{Stat: s, DeltaSeconds: c.TotalSeconds - selfTotal}
		if c.Status == models.StatusOK {
			position++
			rank := position
			if !allZero && position > 1 && c.TotalSeconds == prevSeconds {
				rank = prevRank
			}
			prevRank, prevSeconds = rank, c.TotalSeconds
			entry.Rank = &rank
		}
		out = append(out, entry)
	}
	return out
}

// SliceOptions sizes the podium and the window around the viewer.
type SliceOptions struct {
	PodiumCount int
	AroundCount int
}

// DefaultSliceOptions is a podium of three and one neighbour on each side.
var DefaultSliceOptions = SliceOptions{PodiumCount: 3, AroundCount: 1}

// LeaderboardSlice partitions a leaderboard for display. Podium, NearMe and
// Rest are disjoint by username and together hold every entry.
type LeaderboardSlice[S Stat] struct {
	Podium      []RankedEntry[S] `json:"podium"`
	NearMe      []RankedEntry[S] `json:"near_me"`
	Rest        []RankedEntry[S] `json:"rest"`
	SelfEntry   *RankedEntry[S]  `json:"self_entry,omitempty"`
	LeaderEntry *RankedEntry[S]  `json:"leader_entry,omitempty"`
}

// SliceLeaderboard splits ranked entries into podium, the viewer's
// neighbourhood and everything else.
func SliceLeaderboard[S Stat](entries []RankedEntry[S], selfUsername string, opts SliceOptions) LeaderboardSlice[S] {
	if opts.PodiumCount < 0 {
		opts.PodiumCount = 0
	}
	if opts.AroundCount < 0 {
		opts.AroundCount = 0
	}

	sorted := make([]RankedEntry[S], len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return lessStat(sorted[i].Stat.Core(), sorted[j].Stat.Core())
	})

	ranked := make([]RankedEntry[S], 0, len(sorted))
	for _, e := range sorted {
		if e.Ranked() {
			ranked = append(ranked, e)
		}
	}

	slice := LeaderboardSlice[S]{
		Podium: []RankedEntry[S]{},
		NearMe: []RankedEntry[S]{},
		Rest:   []RankedEntry[S]{},
	}
	picked := make(map[string]struct{}, len(sorted))

	for i := 0; i < len(ranked) && i < opts.PodiumCount; i++ {
		slice.Podium = append(slice.Podium, ranked[i])
		picked[ranked[i].Username()] = struct{}{}
	}
	if len(ranked) > 0 {
		leader := ranked[0]
		slice.LeaderEntry = &leader
	}

	for i := range sorted {
		if sorted[i].Username() == selfUsername {
			self := sorted[i]
			slice.SelfEntry = &self
			break
		}
	}

	selfIdx := -1
	for i, e := range ranked {
		if e.Username() == selfUsername {
			selfIdx = i
			break
		}
	}
	if selfIdx >= 0 {
		lo := selfIdx - opts.AroundCount
		if lo < 0 {
			lo = 0
		}
		hi := selfIdx + opts.AroundCount + 1
		if hi > len(ranked) {
			hi = len(ranked)
		}
		for _, e := range ranked[lo:hi] {
			if _, ok := picked[e.Username()]; ok {
				continue
			}
			slice.NearMe = append(slice.NearMe, e)
			picked[e.Username()] = struct{}{}
		}
	}

	for _, e := range sorted {
		if _, ok := picked[e.Username()]; ok {
			continue
		}
		slice.Rest = append(slice.Rest, e)
		picked[e.Username()] = struct{}{}
	}
	return slice
}
