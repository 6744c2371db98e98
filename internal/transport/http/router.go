package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"drill-service/internal/app"
	"drill-service/internal/metrics"
)

// Server holds the use cases behind the REST and WebSocket surface.
type Server struct {
	engine       *app.DrillEngine
	catalog      *app.CatalogService
	progression  *app.ProgressionService
	leaderboards *app.LeaderboardService
	hub          *app.LeaderboardHub
	auth         *Authenticator
	metrics      *metrics.Collector
	log          *zap.Logger
	upgrader     websocket.Upgrader
}

type Deps struct {
	Engine       *app.DrillEngine
	Catalog      *app.CatalogService
	Progression  *app.ProgressionService
	Leaderboards *app.LeaderboardService
	Hub          *app.LeaderboardHub
	Auth         *Authenticator
	Metrics      *metrics.Collector
	Log          *zap.Logger
	// AllowOrigins lists CORS origins; empty allows any origin.
	AllowOrigins []string
}

func NewServer(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	auth := d.Auth
	if auth == nil {
		auth = NewAuthenticator("")
	}
	return &Server{
		engine:       d.Engine,
		catalog:      d.Catalog,
		progression:  d.Progression,
		leaderboards: d.Leaderboards,
		hub:          d.Hub,
		auth:         auth,
		metrics:      d.Metrics,
		log:          log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	s := NewServer(d)

	r := gin.New()
	r.Use(gin.Recovery(), s.observe())

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID", "X-User-Role"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(d.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = d.AllowOrigins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	authed := r.Group("", s.auth.Middleware())
	authed.GET("/ws", s.ServeWS)

	api := authed.Group("/api")
	authors := RequireRole(RoleAdmin, RoleTeacher)

	me := api.Group("/users/me")
	me.POST("", s.registerUser)
	me.GET("/progress", s.getProgress)
	me.GET("/attempts", s.getHistory)
	me.GET("/best-scores", s.getBestScores)
	me.POST("/modules/:moduleId/complete", s.completeModule)

	drills := api.Group("/drills")
	drills.GET("", s.listDrills)
	drills.GET("/popular", s.popularDrills)
	drills.GET("/stats/overview", authors, s.drillsOverview)
	drills.GET("/:id", s.getDrill)
	drills.POST("", authors, s.createDrill)
	drills.PUT("/:id", authors, s.updateDrill)
	drills.POST("/:id/start", s.startDrill)
	drills.GET("/:id/leaderboard", s.drillLeaderboard)
	drills.GET("/:id/analytics", authors, s.drillAnalytics)

	attempts := api.Group("/attempts/:attemptId")
	attempts.GET("", s.getAttempt)
	attempts.POST("/respond", s.respond)
	attempts.POST("/complete", s.complete)
	attempts.POST("/abandon", s.abandon)
	attempts.POST("/timeout", s.timeout)

	api.GET("/leaderboard", s.pointsLeaderboard)

	admin := api.Group("/admin", RequireRole(RoleAdmin))
	admin.POST("/users/:userId/points", s.addPoints)
	admin.POST("/users/:userId/badges", s.addBadge)

	return r
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if s.metrics != nil {
			s.metrics.ObserveRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(start))
		}
	}
}
