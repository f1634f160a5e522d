package logic

import "github.com/devpulse/stats-api/internal/models"

// RuleKind selects how a rule's threshold is measured.
type RuleKind string

const (
	KindTotalSeconds       RuleKind = "total_seconds"
	KindDistinctLanguages  RuleKind = "distinct_languages"
	KindDistinctEditors    RuleKind = "distinct_editors"
	KindDistinctProjects   RuleKind = "distinct_projects"
	KindTopLanguageSeconds RuleKind = "top_language_seconds"
)

// MinCategorySeconds is how long a language, editor or project must be used
// in one bucket to count towards the distinct-count rules.
const MinCategorySeconds int64 = 10 * 60

// AchievementRule is one entry of the static catalog. Rules are data; the
// interpreter in achievements.go evaluates them.
type AchievementRule struct {
	ID          string
	Title       string
	Description string
	Icon        string
	Context     models.ContextKind
	Kind        RuleKind
	Threshold   int64
	Priority    int
}

const hour = 3600

// Achievement ids referenced by the honor title combos.
const (
	AchievementDailyUltra     = "daily_ultra"
	AchievementDailyPolyglot  = "daily_polyglot"
	AchievementWeeklyMarathon = "weekly_marathon"
	AchievementWeeklyIron     = "weekly_iron"
	AchievementWeeklyTitan    = "weekly_titan"
)

var catalog = []AchievementRule{
	{
		ID: "daily_warm_up", Title: "Warm Up", Description: "Code for at least one hour in a day",
		Icon: "sunrise", Context: models.ContextDaily, Kind: KindTotalSeconds, Threshold: 1 * hour, Priority: 10,
	},
	{
		ID: "daily_deep_focus", Title: "Deep Focus", Description: "Code for at least four hours in a day",
		Icon: "target", Context: models.ContextDaily, Kind: KindTotalSeconds, Threshold: 4 * hour, Priority: 30,
	},
	{
		ID: "daily_full_shift", Title: "Full Shift", Description: "Code for at least eight hours in a day",
		Icon: "briefcase", Context: models.ContextDaily, Kind: KindTotalSeconds, Threshold: 8 * hour, Priority: 50,
	},
	{
		ID: AchievementDailyUltra, Title: "Ultra", Description: "Code for at least twelve hours in a day",
		Icon: "flame", Context: models.ContextDaily, Kind: KindTotalSeconds, Threshold: 12 * hour, Priority: 80,
	},
	{
		ID: AchievementDailyPolyglot, Title: "Polyglot", Description: "Use three languages for ten minutes each in a day",
		Icon: "globe", Context: models.ContextDaily, Kind: KindDistinctLanguages, Threshold: 3, Priority: 25,
	},
	{
		ID: "daily_editor_hopper", Title: "Editor Hopper", Description: "Use two editors for ten minutes each in a day",
		Icon: "shuffle", Context: models.ContextDaily, Kind: KindDistinctEditors, Threshold: 2, Priority: 15,
	},
	{
		ID: "weekly_steady", Title: "Steady Week", Description: "Code for at least ten hours in a week",
		Icon: "calendar", Context: models.ContextWeekly, Kind: KindTotalSeconds, Threshold: 10 * hour, Priority: 20,
	},
	{
		ID: AchievementWeeklyMarathon, Title: "Marathon Week", Description: "Code for at least twenty hours in a week",
		Icon: "route", Context: models.ContextWeekly, Kind: KindTotalSeconds, Threshold: 20 * hour, Priority: 40,
	},
	{
		ID: AchievementWeeklyIron, Title: "Iron Week", Description: "Code for at least forty hours in a week",
		Icon: "anvil", Context: models.ContextWeekly, Kind: KindTotalSeconds, Threshold: 40 * hour, Priority: 70,
	},
	{
		ID: AchievementWeeklyTitan, Title: "Titan Week", Description: "Code for at least sixty hours in a week",
		Icon: "mountain", Context: models.ContextWeekly, Kind: KindTotalSeconds, Threshold: 60 * hour, Priority: 90,
	},
	{
		ID: "weekly_project_juggler", Title: "Project Juggler", Description: "Work on five projects in a week",
		Icon: "layers", Context: models.ContextWeekly, Kind: KindDistinctProjects, Threshold: 5, Priority: 35,
	},
	{
		ID: "weekly_language_master", Title: "Language Master", Description: "Spend fifteen hours in one language in a week",
		Icon: "book", Context: models.ContextWeekly, Kind: KindTopLanguageSeconds, Threshold: 15 * hour, Priority: 45,
	},
}

var catalogByID = func() map[string]AchievementRule {
	m := make(map[string]AchievementRule, len(catalog))
	for _, r := range catalog {
		m[r.ID] = r
	}
	return m
}()

// Catalog returns a copy of the achievement catalog in declaration order.
func Catalog() []AchievementRule {
	out := make([]AchievementRule, len(catalog))
	copy(out, catalog)
	return out
}

// LookupAchievement finds a rule by id.
func LookupAchievement(id string) (AchievementRule, bool) {
	r, ok := catalogByID[id]
	return r, ok
}

// RulesFor returns the rules that apply to one context kind.
func RulesFor(kind models.ContextKind) []AchievementRule {
	var out []AchievementRule
	for _, r := range catalog {
		if r.Context == kind {
			out = append(out, r)
		}
	}
	return out
}
