package domain

import (
	"cmp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// DrillType is the hazard a drill trains for.
type DrillType string

const (
	DrillEarthquake DrillType = "earthquake"
	DrillFire       DrillType = "fire"
	DrillFlood      DrillType = "flood"
	DrillCyclone    DrillType = "cyclone"
	DrillGeneral    DrillType = "general"
)

// Valid reports whether t is a known drill type.
func (t DrillType) Valid() bool {
	switch t {
	case DrillEarthquake, DrillFire, DrillFlood, DrillCyclone, DrillGeneral:
		return true
	}
	return false
}

// Difficulty of a drill.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// RegionAll marks a drill as available in every region.
const RegionAll = "all"

const (
	DefaultPassingScore = 70
	DefaultMaxAttempts  = 3
	DefaultTimeLimit    = 60
	MinTimeLimit        = 10
)

// ScenarioOption is a selectable answer within a scenario.
type ScenarioOption struct {
	Text        string `json:"text" bson:"text" yaml:"text"`
	Description string `json:"description,omitempty" bson:"description,omitempty" yaml:"description"`
	IsCorrect   bool   `json:"isCorrect" bson:"is_correct" yaml:"isCorrect"`
	Points      int    `json:"points" bson:"points" yaml:"points"`
	Feedback    string `json:"feedback,omitempty" bson:"feedback,omitempty" yaml:"feedback"`
}

// Scenario is one ordered step of a drill.
type Scenario struct {
	Title       string           `json:"title" bson:"title" yaml:"title"`
	Description string           `json:"description" bson:"description" yaml:"description"`
	Icon        string           `json:"icon,omitempty" bson:"icon,omitempty" yaml:"icon"`
	Options     []ScenarioOption `json:"options" bson:"options" yaml:"options"`
	TimeLimit   int              `json:"timeLimit" bson:"time_limit" yaml:"timeLimit"` // seconds
	Order       int              `json:"order" bson:"order" yaml:"order"`
}

// MaxPoints is the best score obtainable in this scenario.
func (s Scenario) MaxPoints() int {
	best := 0
	for _, opt := range s.Options {
		best = max(best, opt.Points)
	}
	return best
}

// CorrectOption returns the index of the first option flagged correct, or -1.
func (s Scenario) CorrectOption() int {
	for i, opt := range s.Options {
		if opt.IsCorrect {
			return i
		}
	}
	return -1
}

// DrillDefinition is an authored drill. It is immutable while referenced by attempts.
type DrillDefinition struct {
	ID                string     `json:"id" bson:"_id" yaml:"id"`
	Title             string     `json:"title" bson:"title" yaml:"title"`
	Description       string     `json:"description" bson:"description" yaml:"description"`
	Type              DrillType  `json:"type" bson:"type" yaml:"type"`
	Difficulty        Difficulty `json:"difficulty" bson:"difficulty" yaml:"difficulty"`
	Icon              string     `json:"icon,omitempty" bson:"icon,omitempty" yaml:"icon"`
	TargetAudience    []string   `json:"targetAudience,omitempty" bson:"target_audience,omitempty" yaml:"targetAudience"`
	Regions           []string   `json:"regions,omitempty" bson:"regions,omitempty" yaml:"regions"`
	EstimatedDuration int        `json:"estimatedDuration,omitempty" bson:"estimated_duration,omitempty" yaml:"estimatedDuration"` // minutes
	Tags              []string   `json:"tags,omitempty" bson:"tags,omitempty" yaml:"tags"`
	Scenarios         []Scenario `json:"scenarios" bson:"scenarios" yaml:"scenarios"`
	PassingScore      int        `json:"passingScore" bson:"passing_score" yaml:"passingScore"`
	MaxAttempts       int        `json:"maxAttempts" bson:"max_attempts" yaml:"maxAttempts"`
	Archived          bool       `json:"archived,omitempty" bson:"archived,omitempty" yaml:"archived"`
	Version           int        `json:"version" bson:"version" yaml:"version"`
	CreatedBy         string     `json:"createdBy,omitempty" bson:"created_by,omitempty" yaml:"createdBy"`
	UpdatedAt         time.Time  `json:"updatedAt" bson:"updated_at" yaml:"-"`
}

// TotalPossiblePoints is always derived from the scenarios, never stored.
func (d DrillDefinition) TotalPossiblePoints() int {
	total := 0
	for _, s := range d.Scenarios {
		total += s.MaxPoints()
	}
	return total
}

// TotalTimeLimit is the sum of scenario time limits.
func (d DrillDefinition) TotalTimeLimit() time.Duration {
	var secs int
	for _, s := range d.Scenarios {
		secs += s.TimeLimit
	}
	return time.Duration(secs) * time.Second
}

// ApplyDefaults fills authoring defaults for unset fields.
func (d *DrillDefinition) ApplyDefaults() {
	d.Title = strings.TrimSpace(d.Title)
	if d.PassingScore == 0 {
		d.PassingScore = DefaultPassingScore
	}
	if d.MaxAttempts == 0 {
		d.MaxAttempts = DefaultMaxAttempts
	}
	for i := range d.Scenarios {
		if d.Scenarios[i].TimeLimit == 0 {
			d.Scenarios[i].TimeLimit = DefaultTimeLimit
		}
	}
}

// Validate checks the definition invariants.
func (d DrillDefinition) Validate() error {
	if n := utf8.RuneCountInString(strings.TrimSpace(d.Title)); n < 5 || n > 100 {
		return Invalid("title", "must be between 5 and 100 characters")
	}
	if !d.Type.Valid() {
		return Invalid("type", "unknown drill type %q", d.Type)
	}
	if !d.Difficulty.Valid() {
		return Invalid("difficulty", "unknown difficulty %q", d.Difficulty)
	}
	if d.PassingScore < 0 || d.PassingScore > 100 {
		return Invalid("passingScore", "must be between 0 and 100")
	}
	if d.MaxAttempts < 1 {
		return Invalid("maxAttempts", "must be at least 1")
	}
	if len(d.Scenarios) == 0 {
		return Invalid("scenarios", "drill must have at least one scenario")
	}
	for i, s := range d.Scenarios {
		if i > 0 && s.Order <= d.Scenarios[i-1].Order {
			return Invalid("scenarios", "scenario %d: order must be strictly increasing", i)
		}
		if strings.TrimSpace(s.Title) == "" {
			return Invalid("scenarios", "scenario %d: title is required", i)
		}
		if len(s.Options) < 2 {
			return Invalid("scenarios", "scenario %d: at least two options required", i)
		}
		if s.TimeLimit < MinTimeLimit {
			return Invalid("scenarios", "scenario %d: time limit must be at least %d seconds", i, MinTimeLimit)
		}
		for j, opt := range s.Options {
			if strings.TrimSpace(opt.Text) == "" {
				return Invalid("scenarios", "scenario %d option %d: text is required", i, j)
			}
			if opt.Points < 0 {
				return Invalid("scenarios", "scenario %d option %d: points cannot be negative", i, j)
			}
		}
	}
	return nil
}

// AvailableIn reports whether the drill targets region (or every region).
func (d DrillDefinition) AvailableIn(region string) bool {
	if region == "" || region == RegionAll {
		return true
	}
	return slices.Contains(d.Regions, region) || slices.Contains(d.Regions, RegionAll)
}

// PublicOption hides correctness, points and feedback.
type PublicOption struct {
	Text        string `json:"text"`
	Description string `json:"description,omitempty"`
}

// PublicScenario is the scenario as shown before an answer is submitted.
type PublicScenario struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Icon        string         `json:"icon,omitempty"`
	Options     []PublicOption `json:"options"`
	TimeLimit   int            `json:"timeLimit"`
	Order       int            `json:"order"`
}

// PublicDrill is the catalog view of a drill.
type PublicDrill struct {
	ID                string           `json:"id"`
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	Type              DrillType        `json:"type"`
	Difficulty        Difficulty       `json:"difficulty"`
	Icon              string           `json:"icon,omitempty"`
	TargetAudience    []string         `json:"targetAudience,omitempty"`
	Regions           []string         `json:"regions,omitempty"`
	EstimatedDuration int              `json:"estimatedDuration,omitempty"`
	Tags              []string         `json:"tags,omitempty"`
	PassingScore      int              `json:"passingScore"`
	MaxAttempts       int              `json:"maxAttempts"`
	Version           int              `json:"version"`
	Scenarios         []PublicScenario `json:"scenarios"`
}

// PublicScenarios strips answer data from scenarios.
func PublicScenarios(scenarios []Scenario) []PublicScenario {
	out := make([]PublicScenario, 0, len(scenarios))
	for _, s := range scenarios {
		opts := make([]PublicOption, 0, len(s.Options))
		for _, o := range s.Options {
			opts = append(opts, PublicOption{Text: o.Text, Description: o.Description})
		}
		out = append(out, PublicScenario{
			Title:       s.Title,
			Description: s.Description,
			Icon:        s.Icon,
			Options:     opts,
			TimeLimit:   s.TimeLimit,
			Order:       s.Order,
		})
	}
	return out
}

// Public returns the catalog view of d.
func (d DrillDefinition) Public() PublicDrill {
	return PublicDrill{
		ID:                d.ID,
		Title:             d.Title,
		Description:       d.Description,
		Type:              d.Type,
		Difficulty:        d.Difficulty,
		Icon:              d.Icon,
		TargetAudience:    d.TargetAudience,
		Regions:           d.Regions,
		EstimatedDuration: d.EstimatedDuration,
		Tags:              d.Tags,
		PassingScore:      d.PassingScore,
		MaxAttempts:       d.MaxAttempts,
		Version:           d.Version,
		Scenarios:         PublicScenarios(d.Scenarios),
	}
}

// DrillFilter narrows catalog listings. Empty fields match everything.
type DrillFilter struct {
	Type       DrillType
	Difficulty Difficulty
	Audience   string
	Region     string
}

// Match reports whether d passes the filter. Archived drills never match.
func (f DrillFilter) Match(d DrillDefinition) bool {
	if d.Archived {
		return false
	}
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	if f.Difficulty != "" && d.Difficulty != f.Difficulty {
		return false
	}
	if f.Audience != "" && !slices.Contains(d.TargetAudience, f.Audience) {
		return false
	}
	return d.AvailableIn(f.Region)
}

// DrillStatistics are the aggregate counters kept per drill for analytics.
type DrillStatistics struct {
	DrillID          string  `json:"drillId"`
	TotalAttempts    int     `json:"totalAttempts"`
	TotalCompletions int     `json:"totalCompletions"`
	TotalPassed      int     `json:"totalPassed"`
	AverageScore     float64 `json:"averageScore"`
	AverageTime      float64 `json:"averageTime"` // seconds
	SuccessRate      float64 `json:"successRate"` // completions / attempts, percent
}

// NewDrillStatistics derives averages and rates from raw sums.
func NewDrillStatistics(drillID string, attempts, completions, passed int, scoreSum, timeSum int64) DrillStatistics {
	st := DrillStatistics{
		DrillID:          drillID,
		TotalAttempts:    attempts,
		TotalCompletions: completions,
		TotalPassed:      passed,
	}
	if completions > 0 {
		st.AverageScore = float64(scoreSum) / float64(completions)
		st.AverageTime = float64(timeSum) / float64(completions)
	}
	if attempts > 0 {
		st.SuccessRate = float64(completions) / float64(attempts) * 100
	}
	return st
}

// PopularDrill is the catalog summary shown in popularity listings.
type PopularDrill struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Type        DrillType       `json:"type"`
	Difficulty  Difficulty      `json:"difficulty"`
	Icon        string          `json:"icon,omitempty"`
	Statistics  DrillStatistics `json:"statistics"`
}

// RankByPopularity orders drills by attempts, then average score, then id,
// and keeps the first limit entries.
func RankByPopularity(drills []PopularDrill, limit int) []PopularDrill {
	out := slices.Clone(drills)
	slices.SortFunc(out, func(a, b PopularDrill) int {
		if c := cmp.Compare(b.Statistics.TotalAttempts, a.Statistics.TotalAttempts); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Statistics.AverageScore, a.Statistics.AverageScore); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// TypeOverview aggregates drill statistics for one drill type.
type TypeOverview struct {
	Type             DrillType `json:"type"`
	Count            int       `json:"count"`
	TotalAttempts    int       `json:"totalAttempts"`
	TotalCompletions int       `json:"totalCompletions"`
	AvgScore         float64   `json:"avgScore"`
	AvgTime          float64   `json:"avgTime"`
	SuccessRate      float64   `json:"successRate"`
}

// SummarizeByType groups per-drill statistics by drill type. Averages are the
// mean of the per-drill averages; the success rate is completions over
// attempts for the whole type.
func SummarizeByType(drills []PopularDrill) []TypeOverview {
	byType := make(map[DrillType]*TypeOverview)
	for _, d := range drills {
		o, ok := byType[d.Type]
		if !ok {
			o = &TypeOverview{Type: d.Type}
			byType[d.Type] = o
		}
		o.Count++
		o.TotalAttempts += d.Statistics.TotalAttempts
		o.TotalCompletions += d.Statistics.TotalCompletions
		o.AvgScore += d.Statistics.AverageScore
		o.AvgTime += d.Statistics.AverageTime
	}

	out := make([]TypeOverview, 0, len(byType))
	for _, o := range byType {
		o.AvgScore /= float64(o.Count)
		o.AvgTime /= float64(o.Count)
		if o.TotalAttempts > 0 {
			o.SuccessRate = float64(o.TotalCompletions) / float64(o.TotalAttempts) * 100
		}
		out = append(out, *o)
	}
	slices.SortFunc(out, func(a, b TypeOverview) int { return cmp.Compare(a.Type, b.Type) })
	return out
}
