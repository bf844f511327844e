// Package status serves health, metrics and a JSON snapshot of the bot.
package status

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/vthunder/toolbot/internal/activity"
	"github.com/vthunder/toolbot/internal/conversation"
	"github.com/vthunder/toolbot/internal/logging"
)

// Bot is the part of the orchestrator the status page reads
type Bot interface {
	Phase() string
	Rooms() []conversation.RoomStats
}

// Executions counts executed proposals per room
type Executions interface {
	CountByRoom(ctx context.Context) (map[string]int, error)
}

// Options configure the server. Only Bot is required.
type Options struct {
	Addr       string
	Bot        Bot
	Executions Executions
	Activity   *activity.Log
	Metrics    http.Handler
}

// Snapshot is the /status response body
type Snapshot struct {
	Phase      string                   `json:"phase"`
	Uptime     string                   `json:"uptime"`
	Rooms      []conversation.RoomStats `json:"rooms"`
	Executions map[string]int           `json:"executions,omitempty"`
	Process    *ProcessStats            `json:"process,omitempty"`
}

// ProcessStats describes this process
type ProcessStats struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Threads    int32   `json:"threads"`
}

// Server is the HTTP status server
type Server struct {
	opts    Options
	started time.Time
	engine  *gin.Engine
	http    *http.Server
}

// New builds the router
func New(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{opts: opts, started: time.Now()}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.GET("/healthz", s.healthz)
	r.GET("/status", s.status)
	r.GET("/activity", s.activity)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}
	s.engine = r
	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler { return s.engine }

// Start listens in the background until Shutdown
func (s *Server) Start() {
	s.http = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logging.Info("status", "listening on %s", s.opts.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("status", "server stopped: %v", err)
		}
	}()
}

// Shutdown stops the server if it was started
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) healthz(c *gin.Context) {
	code := http.StatusOK
	if s.opts.Bot.Phase() != "live" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"phase": s.opts.Bot.Phase()})
}

func (s *Server) status(c *gin.Context) {
	snap := Snapshot{
		Phase:  s.opts.Bot.Phase(),
		Uptime: time.Since(s.started).Round(time.Second).String(),
		Rooms:  s.opts.Bot.Rooms(),
	}
	if s.opts.Executions != nil {
		counts, err := s.opts.Executions.CountByRoom(c.Request.Context())
		if err != nil {
			logging.Warn("status", "execution counts: %v", err)
		} else {
			snap.Executions = counts
		}
	}
	if ps, err := processStats(c.Request.Context()); err == nil {
		snap.Process = ps
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) activity(c *gin.Context) {
	if s.opts.Activity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "activity log disabled"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}

	var entries []activity.Entry
	switch {
	case c.Query("room") != "":
		entries, err = s.opts.Activity.ForRoom(c.Query("room"), limit)
	case c.Query("type") != "":
		entries, err = s.opts.Activity.ByType(activity.Type(c.Query("type")), limit)
	case c.Query("q") != "":
		entries, err = s.opts.Activity.Search(c.Query("q"), limit)
	default:
		entries, err = s.opts.Activity.Recent(limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []activity.Entry{}
	}
	c.JSON(http.StatusOK, entries)
}

func processStats(ctx context.Context) (*ProcessStats, error) {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	ps := &ProcessStats{PID: p.Pid}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil {
		ps.RSSBytes = mem.RSS
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		ps.CPUPercent = cpu
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		ps.Threads = n
	}
	return ps, nil
}

func requestLogger() gin.HandlerFunc {
	log := logging.For("status")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugw("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
