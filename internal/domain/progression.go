package domain

import (
	"slices"
	"time"
)

// Level is a tier derived from cumulative points.
type Level struct {
	Number int    `json:"level"`
	Title  string `json:"title"`
}

type levelBand struct {
	min   int
	level Level
}

// levelTable is ordered from highest threshold to lowest.
var levelTable = []levelBand{
	{1000, Level{5, "Disaster Preparedness Expert"}},
	{750, Level{4, "Safety Specialist"}},
	{500, Level{3, "Emergency Prepared"}},
	{250, Level{2, "Safety Aware"}},
	{100, Level{1, "Safety Beginner"}},
	{0, Level{0, "New Learner"}},
}

// maxLevelCeiling is the display target once the top level is reached.
const maxLevelCeiling = 1500

// LevelFor maps points to a level using the fixed threshold table.
func LevelFor(points int) Level {
	for _, b := range levelTable {
		if points >= b.min {
			return b.level
		}
	}
	return levelTable[len(levelTable)-1].level
}

// LevelProgress describes how far a user is into the current level band.
type LevelProgress struct {
	Current      Level `json:"currentLevel"`
	Points       int   `json:"totalPoints"`
	CurrentFloor int   `json:"currentLevelPoints"`
	NextAt       int   `json:"nextLevelPoints"`
	PointsToNext int   `json:"pointsToNext"`
	Percent      int   `json:"progress"`
}

// ProgressFor computes the level band position for points.
func ProgressFor(points int) LevelProgress {
	points = max(points, 0)
	floor, next := 0, levelTable[len(levelTable)-2].min
	for i, b := range levelTable {
		if points >= b.min {
			floor = b.min
			if i == 0 {
				next = maxLevelCeiling
			} else {
				next = levelTable[i-1].min
			}
			break
		}
	}
	pct := (points - floor) * 100 / (next - floor)
	return LevelProgress{
		Current:      LevelFor(points),
		Points:       points,
		CurrentFloor: floor,
		NextAt:       next,
		PointsToNext: max(0, next-points),
		Percent:      min(100, max(0, pct)),
	}
}

// BadgeCode identifies an achievement in the fixed catalog.
type BadgeCode string

const (
	BadgeFirstDrill       BadgeCode = "first-drill"
	BadgeDrillMaster      BadgeCode = "drill-master"
	BadgeEarthquakeExpert BadgeCode = "earthquake-expert"
	BadgeFloodSpecialist  BadgeCode = "flood-specialist"
	BadgeFireSafetyPro    BadgeCode = "fire-safety-pro"
	BadgeCyclonePrepared  BadgeCode = "cyclone-prepared"
	BadgeQuickLearner     BadgeCode = "quick-learner"
	BadgeSafetyAmbassador BadgeCode = "safety-ambassador"
	BadgeEmergencyReady   BadgeCode = "emergency-ready"
)

// Badge is the display metadata of a catalog entry.
type Badge struct {
	Code        BadgeCode `json:"code"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Rarity      string    `json:"rarity"`
}

var badgeCatalog = map[BadgeCode]Badge{
	BadgeFirstDrill:       {BadgeFirstDrill, "First Step", "Complete your first disaster drill", "common"},
	BadgeDrillMaster:      {BadgeDrillMaster, "Drill Master", "Complete 10 disaster drills", "rare"},
	BadgeEarthquakeExpert: {BadgeEarthquakeExpert, "Earthquake Expert", "Master earthquake preparedness drills", "epic"},
	BadgeFloodSpecialist:  {BadgeFloodSpecialist, "Flood Specialist", "Excel in flood safety drills", "epic"},
	BadgeFireSafetyPro:    {BadgeFireSafetyPro, "Fire Safety Pro", "Excel in fire emergency protocols", "epic"},
	BadgeCyclonePrepared:  {BadgeCyclonePrepared, "Cyclone Prepared", "Excel in cyclone preparedness drills", "epic"},
	BadgeQuickLearner:     {BadgeQuickLearner, "Quick Learner", "Complete 5 modules in one day", "uncommon"},
	BadgeSafetyAmbassador: {BadgeSafetyAmbassador, "Safety Ambassador", "Help 10 fellow students with safety tips", "legendary"},
	BadgeEmergencyReady:   {BadgeEmergencyReady, "Emergency Ready", "Achieve 100% preparedness score", "legendary"},
}

// Valid reports whether c is in the catalog.
func (c BadgeCode) Valid() bool {
	_, ok := badgeCatalog[c]
	return ok
}

// BadgeInfo returns catalog metadata for c.
func BadgeInfo(c BadgeCode) (Badge, bool) {
	b, ok := badgeCatalog[c]
	return b, ok
}

// typeBadges maps drill types to their mastery badge. General drills have none.
var typeBadges = map[DrillType]BadgeCode{
	DrillEarthquake: BadgeEarthquakeExpert,
	DrillFire:       BadgeFireSafetyPro,
	DrillFlood:      BadgeFloodSpecialist,
	DrillCyclone:    BadgeCyclonePrepared,
}

const (
	// ModuleCompletionBonus is awarded once per module.
	ModuleCompletionBonus = 50
	// TypeBadgeMinScore is the minimum attempt score for a drill-type badge.
	TypeBadgeMinScore = 85
	// DrillMasterCount is the completed-drill count that earns drill-master.
	DrillMasterCount = 10
	// QuickLearnerModules is the number of modules first-completed in one UTC day for quick-learner.
	QuickLearnerModules = 5
)

// DrillPointsFor returns the performance tier reward for a completed attempt.
func DrillPointsFor(score int) int {
	switch {
	case score >= 90:
		return 50
	case score >= 75:
		return 40
	case score >= 60:
		return 30
	default:
		return 25
	}
}

// CompletedModule is one entry of the completed-module set.
type CompletedModule struct {
	ModuleID    string    `json:"moduleId"`
	Score       int       `json:"score"`
	CompletedAt time.Time `json:"completedAt"`
}

// UserProgression is a user's cumulative gamification state.
type UserProgression struct {
	UserID           string            `json:"userId"`
	Region           string            `json:"region,omitempty"`
	Points           int               `json:"points"`
	Level            int               `json:"level"`
	Badges           []BadgeCode       `json:"badges"`
	CompletedModules []CompletedModule `json:"completedModules"`
	DrillsCompleted  int               `json:"drillsCompleted"`
	BestDrillScore   int               `json:"bestDrillScore"`
	RecordedAttempts []string          `json:"-"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
	Version          int               `json:"-"`
}

// NewUserProgression returns an empty progression registered at now.
func NewUserProgression(userID, region string, now time.Time) UserProgression {
	return UserProgression{
		UserID:           userID,
		Region:           region,
		Badges:           []BadgeCode{},
		CompletedModules: []CompletedModule{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// HasBadge reports whether code was already awarded.
func (p UserProgression) HasBadge(code BadgeCode) bool {
	return slices.Contains(p.Badges, code)
}

// AddPoints adds a positive amount and recomputes the level. Non-positive
// amounts leave the progression unchanged.
func (p *UserProgression) AddPoints(amount int) Level {
	if amount > 0 {
		p.Points += amount
		p.Level = LevelFor(p.Points).Number
	}
	return LevelFor(p.Points)
}

// AddBadge inserts code once. It reports whether the badge is new.
func (p *UserProgression) AddBadge(code BadgeCode) (bool, error) {
	if !code.Valid() {
		return false, ErrUnknownBadge
	}
	if p.HasBadge(code) {
		return false, nil
	}
	p.Badges = append(p.Badges, code)
	return true, nil
}

// ModuleResult is the outcome of completing a module.
type ModuleResult struct {
	Module       CompletedModule `json:"module"`
	FirstTime    bool            `json:"firstCompletion"`
	BonusAwarded int             `json:"pointsAwarded"`
	NewLevel     Level           `json:"newLevel"`
	LeveledUp    bool            `json:"leveledUp"`
	NewBadges    []BadgeCode     `json:"newBadges"`
}

// CompleteModule upserts the module keeping the highest score. The bonus is
// paid only on first completion.
func (p *UserProgression) CompleteModule(moduleID string, score int, now time.Time) (ModuleResult, error) {
	if moduleID == "" {
		return ModuleResult{}, Invalid("moduleId", "is required")
	}
	if score < 0 || score > 100 {
		return ModuleResult{}, Invalid("score", "must be between 0 and 100")
	}
	before := LevelFor(p.Points)
	res := ModuleResult{NewBadges: []BadgeCode{}}

	idx := slices.IndexFunc(p.CompletedModules, func(m CompletedModule) bool { return m.ModuleID == moduleID })
	if idx >= 0 {
		m := &p.CompletedModules[idx]
		m.Score = max(m.Score, score)
		res.Module = *m
	} else {
		m := CompletedModule{ModuleID: moduleID, Score: score, CompletedAt: now}
		p.CompletedModules = append(p.CompletedModules, m)
		res.Module = m
		res.FirstTime = true
		res.BonusAwarded = ModuleCompletionBonus
		p.AddPoints(ModuleCompletionBonus)

		if p.modulesCompletedOn(now) >= QuickLearnerModules {
			if added, _ := p.AddBadge(BadgeQuickLearner); added {
				res.NewBadges = append(res.NewBadges, BadgeQuickLearner)
			}
		}
	}

	res.NewLevel = LevelFor(p.Points)
	res.LeveledUp = res.NewLevel.Number > before.Number
	p.UpdatedAt = now
	return res, nil
}

func (p UserProgression) modulesCompletedOn(day time.Time) int {
	y, m, d := day.UTC().Date()
	n := 0
	for _, cm := range p.CompletedModules {
		cy, cmon, cd := cm.CompletedAt.UTC().Date()
		if cy == y && cmon == m && cd == d {
			n++
		}
	}
	return n
}

// DrillReward is what a completed attempt earned.
type DrillReward struct {
	PointsAwarded int         `json:"pointsAwarded"`
	NewLevel      Level       `json:"newLevel"`
	LeveledUp     bool        `json:"leveledUp"`
	NewBadges     []BadgeCode `json:"newBadges"`
	Duplicate     bool        `json:"-"`
}

// ApplyDrillResult folds a completed attempt into the progression. Applying
// the same attempt twice is a no-op that returns a Duplicate reward.
func (p *UserProgression) ApplyDrillResult(a DrillAttempt, now time.Time) (DrillReward, error) {
	if a.Status != AttemptCompleted {
		return DrillReward{}, ErrInvalidState
	}
	if slices.Contains(p.RecordedAttempts, a.ID) {
		return DrillReward{NewLevel: LevelFor(p.Points), NewBadges: []BadgeCode{}, Duplicate: true}, nil
	}

	before := LevelFor(p.Points)
	reward := DrillReward{NewBadges: []BadgeCode{}}
	award := func(code BadgeCode) {
		if added, _ := p.AddBadge(code); added {
			reward.NewBadges = append(reward.NewBadges, code)
		}
	}

	p.DrillsCompleted++
	p.BestDrillScore = max(p.BestDrillScore, a.Score)

	reward.PointsAwarded = DrillPointsFor(a.Score)
	p.AddPoints(reward.PointsAwarded)

	switch p.DrillsCompleted {
	case 1:
		award(BadgeFirstDrill)
	case DrillMasterCount:
		award(BadgeDrillMaster)
	}
	if code, ok := typeBadges[a.DrillType]; ok && a.Score >= TypeBadgeMinScore {
		award(code)
	}

	p.RecordedAttempts = append(p.RecordedAttempts, a.ID)
	p.UpdatedAt = now
	reward.NewLevel = LevelFor(p.Points)
	reward.LeveledUp = reward.NewLevel.Number > before.Number
	return reward, nil
}

// Clone returns a deep copy safe to mutate.
func (p UserProgression) Clone() UserProgression {
	out := p
	out.Badges = slices.Clone(p.Badges)
	if out.Badges == nil {
		out.Badges = []BadgeCode{}
	}
	out.CompletedModules = slices.Clone(p.CompletedModules)
	if out.CompletedModules == nil {
		out.CompletedModules = []CompletedModule{}
	}
	out.RecordedAttempts = slices.Clone(p.RecordedAttempts)
	return out
}
