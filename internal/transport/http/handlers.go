package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"drill-service/internal/app"
	"drill-service/internal/domain"
)

type registerRequest struct {
	Region string `json:"region"`
}

type moduleRequest struct {
	Score *int `json:"score"`
}

type respondRequest struct {
	ScenarioIndex  *int `json:"scenarioIndex"`
	SelectedOption *int `json:"selectedOption"`
	TimeSpent      int  `json:"timeSpent"`
}

type pointsRequest struct {
	Points int `json:"points"`
}

type badgeRequest struct {
	Badge domain.BadgeCode `json:"badge"`
}

type progressResponse struct {
	domain.UserProgression
	LevelProgress domain.LevelProgress `json:"levelProgress"`
	BadgeDetails  []domain.Badge       `json:"badgeDetails"`
}

// completionResponse flattens the finalized attempt and its reward.
type completionResponse struct {
	AttemptID         string                  `json:"attemptId"`
	Score             int                     `json:"score"`
	TotalPoints       int                     `json:"totalPoints"`
	MaxPossiblePoints int                     `json:"maxPossiblePoints"`
	Passed            bool                    `json:"passed"`
	CertificateIssued bool                    `json:"certificateIssued"`
	TotalTimeSpent    int                     `json:"totalTimeSpent"`
	CompletionReason  domain.CompletionReason `json:"completionReason"`
	PointsAwarded     int                     `json:"pointsAwarded"`
	NewLevel          domain.Level            `json:"newLevel"`
	LeveledUp         bool                    `json:"leveledUp"`
	NewBadges         []domain.BadgeCode      `json:"newBadges"`
}

func newCompletionResponse(res app.CompletionResult) completionResponse {
	a := res.Attempt
	badges := res.Reward.NewBadges
	if badges == nil {
		badges = []domain.BadgeCode{}
	}
	return completionResponse{
		AttemptID:         a.ID,
		Score:             a.Score,
		TotalPoints:       a.TotalPoints,
		MaxPossiblePoints: a.MaxPossiblePoints,
		Passed:            a.Passed,
		CertificateIssued: a.CertificateIssued,
		TotalTimeSpent:    a.TotalTimeSpent,
		CompletionReason:  a.CompletionReason,
		PointsAwarded:     res.Reward.PointsAwarded,
		NewLevel:          res.Reward.NewLevel,
		LeveledUp:         res.Reward.LeveledUp,
		NewBadges:         badges,
	}
}

func newProgressResponse(p domain.UserProgression) progressResponse {
	details := make([]domain.Badge, 0, len(p.Badges))
	for _, code := range p.Badges {
		if b, ok := domain.BadgeInfo(code); ok {
			details = append(details, b)
		}
	}
	return progressResponse{
		UserProgression: p,
		LevelProgress:   domain.ProgressFor(p.Points),
		BadgeDetails:    details,
	}
}

// queryLimit parses ?limit=; a malformed value falls back to the default.
func queryLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil {
		return 0
	}
	return n
}

// users

func (s *Server) registerUser(c *gin.Context) {
	var req registerRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	p, err := s.progression.EnsureUser(c.Request.Context(), identityFrom(c).UserID, req.Region)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newProgressResponse(p))
}

func (s *Server) getProgress(c *gin.Context) {
	p, err := s.progression.Get(c.Request.Context(), identityFrom(c).UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newProgressResponse(p))
}

func (s *Server) getHistory(c *gin.Context) {
	history, err := s.leaderboards.History(c.Request.Context(), identityFrom(c).UserID, queryLimit(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": history})
}

func (s *Server) getBestScores(c *gin.Context) {
	best, err := s.leaderboards.BestScores(c.Request.Context(), identityFrom(c).UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bestScores": best})
}

func (s *Server) completeModule(c *gin.Context) {
	var req moduleRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Score == nil {
		badRequest(c, "score is required")
		return
	}
	res, err := s.progression.CompleteModule(c.Request.Context(), identityFrom(c).UserID, c.Param("moduleId"), *req.Score)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// drills

func (s *Server) listDrills(c *gin.Context) {
	filter := domain.DrillFilter{
		Type:       domain.DrillType(c.Query("type")),
		Difficulty: domain.Difficulty(c.Query("difficulty")),
		Audience:   c.Query("audience"),
		Region:     c.Query("region"),
	}
	drills, err := s.catalog.List(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drills": drills})
}

func (s *Server) popularDrills(c *gin.Context) {
	drills, err := s.catalog.Popular(c.Request.Context(), queryLimit(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drills": drills})
}

func (s *Server) drillsOverview(c *gin.Context) {
	stats, err := s.catalog.Overview(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

func (s *Server) getDrill(c *gin.Context) {
	drill, err := s.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, drill)
}

func (s *Server) createDrill(c *gin.Context) {
	var def domain.DrillDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		badRequest(c, "invalid drill definition")
		return
	}
	created, err := s.catalog.Create(c.Request.Context(), def, identityFrom(c).UserID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) updateDrill(c *gin.Context) {
	var def domain.DrillDefinition
	if err := c.ShouldBindJSON(&def); err != nil {
		badRequest(c, "invalid drill definition")
		return
	}
	updated, err := s.catalog.Update(c.Request.Context(), c.Param("id"), def)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) startDrill(c *gin.Context) {
	res, err := s.engine.Start(c.Request.Context(), identityFrom(c).UserID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) drillLeaderboard(c *gin.Context) {
	lb, err := s.leaderboards.TopByDrillScore(c.Request.Context(), c.Param("id"), queryLimit(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lb)
}

func (s *Server) drillAnalytics(c *gin.Context) {
	if _, err := s.catalog.Definition(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	report, err := s.leaderboards.Analytics(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// attempts

func (s *Server) getAttempt(c *gin.Context) {
	a, err := s.engine.Get(c.Request.Context(), identityFrom(c).UserID, c.Param("attemptId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a.View())
}

func (s *Server) respond(c *gin.Context) {
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ScenarioIndex == nil || req.SelectedOption == nil {
		badRequest(c, "scenarioIndex and selectedOption are required")
		return
	}
	out, err := s.engine.Respond(c.Request.Context(), identityFrom(c).UserID, c.Param("attemptId"),
		*req.ScenarioIndex, *req.SelectedOption, req.TimeSpent)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) complete(c *gin.Context) {
	res, err := s.engine.Complete(c.Request.Context(), identityFrom(c).UserID, c.Param("attemptId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newCompletionResponse(res))
}

func (s *Server) timeout(c *gin.Context) {
	res, err := s.engine.Timeout(c.Request.Context(), identityFrom(c).UserID, c.Param("attemptId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newCompletionResponse(res))
}

func (s *Server) abandon(c *gin.Context) {
	a, err := s.engine.Abandon(c.Request.Context(), identityFrom(c).UserID, c.Param("attemptId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a.View())
}

// leaderboards and admin

func (s *Server) pointsLeaderboard(c *gin.Context) {
	lb, err := s.leaderboards.TopByPoints(c.Request.Context(), c.Query("region"), queryLimit(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lb)
}

func (s *Server) addPoints(c *gin.Context) {
	var req pointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "points is required")
		return
	}
	level, err := s.progression.AddPoints(c.Request.Context(), c.Param("userId"), req.Points)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"level": level})
}

func (s *Server) addBadge(c *gin.Context) {
	var req badgeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Badge == "" {
		badRequest(c, "badge is required")
		return
	}
	p, err := s.progression.AddBadge(c.Request.Context(), c.Param("userId"), req.Badge)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newProgressResponse(p))
}
