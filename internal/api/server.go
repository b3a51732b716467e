package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"deye-monitor/internal/inverter"
	"deye-monitor/internal/outage"
	"deye-monitor/internal/poller"
	"deye-monitor/internal/stats"
	"deye-monitor/internal/storage"
	"deye-monitor/internal/weather"
)

type Server struct {
	router *gin.Engine
	server *http.Server
	port   int

	poller    *poller.Poller
	caps      inverter.Capabilities
	schedule  *outage.Poller
	events    *outage.EventLog
	phases    *stats.PhaseRecorder
	generator *stats.GeneratorRecorder
	weather   *weather.Poller
	db        *storage.Database

	genFuelLPerHour float64
	genOilIntervalH float64
	batteryCapacity float64
	metricsRegistry *prometheus.Registry
}

type ServerConfig struct {
	Port      int
	Poller    *poller.Poller
	Caps      inverter.Capabilities
	Schedule  *outage.Poller
	Events    *outage.EventLog
	Phases    *stats.PhaseRecorder
	Generator *stats.GeneratorRecorder
	Weather   *weather.Poller
	Database  *storage.Database

	GeneratorFuelLPerHour     float64
	GeneratorOilIntervalHours float64
	BatteryCapacityKWh        float64
	MetricsRegistry           *prometheus.Registry
}

func NewServer(cfg ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:          router,
		port:            cfg.Port,
		poller:          cfg.Poller,
		caps:            cfg.Caps,
		schedule:        cfg.Schedule,
		events:          cfg.Events,
		phases:          cfg.Phases,
		generator:       cfg.Generator,
		weather:         cfg.Weather,
		db:              cfg.Database,
		genFuelLPerHour: cfg.GeneratorFuelLPerHour,
		genOilIntervalH: cfg.GeneratorOilIntervalHours,
		batteryCapacity: cfg.BatteryCapacityKWh,
		metricsRegistry: cfg.MetricsRegistry,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)

	if s.metricsRegistry != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metricsRegistry, promhttp.HandlerOpts{})))
	}

	api := s.router.Group("/api/v1")
	{
		api.GET("/data", s.dataHandler)
		api.GET("/capabilities", s.capabilitiesHandler)
		api.GET("/outage/schedule", s.outageScheduleHandler)
		api.GET("/outages", s.outagesHandler)
		api.POST("/outages", s.recordOutageHandler)
		api.DELETE("/outages", s.clearOutagesHandler)
		api.GET("/phase-stats", s.phaseStatsHandler)
		api.DELETE("/phase-stats", s.clearPhaseStatsHandler)
		api.GET("/phase-history", s.phaseHistoryHandler)
		api.GET("/generator", s.generatorHandler)
		api.GET("/weather", s.weatherHandler)
		api.GET("/readings", s.readingsHandler)
		api.GET("/readings/latest", s.latestReadingHandler)
		api.GET("/stats/daily", s.dailyStatsHandler)
	}
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.router,
	}

	logrus.Infof("API server starting on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) healthHandler(c *gin.Context) {
	inverterOnline := false
	if snap, ok := s.poller.Latest(); ok {
		inverterOnline = snap.Err == ""
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"inverter_online": inverterOnline,
		"timestamp":       time.Now(),
	})
}

func (s *Server) dataHandler(c *gin.Context) {
	snap, ok := s.poller.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Data not yet available",
		})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) capabilitiesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.caps)
}

func (s *Server) outageScheduleHandler(c *gin.Context) {
	if s.schedule == nil {
		c.JSON(http.StatusOK, gin.H{"state": outage.StateUnknown})
		return
	}
	now := time.Now()
	status := s.schedule.StatusAt(now)

	resp := gin.H{
		"state": status.State,
	}
	switch status.State {
	case outage.StateActive:
		resp["outage_end"] = status.End
		resp["remaining_minutes"] = status.RemainingMinutes
	case outage.StateUpcoming:
		if !status.ElectricityResumedAt.IsZero() {
			resp["electricityResumedAt"] = status.ElectricityResumedAt
		}
	}
	if len(status.Upcoming) > 0 {
		resp["upcoming"] = status.Upcoming
	}

	// Battery survival estimate for the active window, or the nearest
	// upcoming one.
	if window, ok := status.SurvivalWindow(now); ok {
		if !s.caps.HasBattery {
			resp["survival"] = outage.NoBatteryEstimate()
		} else if snap, ok := s.poller.Latest(); ok && snap.Err == "" {
			est := outage.EstimateSurvival(snap.BatterySOC, snap.LoadPower,
				window, s.batteryCapacity)
			resp["survival"] = est
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) outagesHandler(c *gin.Context) {
	if s.events == nil {
		c.JSON(http.StatusOK, []outage.Event{})
		return
	}
	c.JSON(http.StatusOK, s.events.All())
}

// recordOutageHandler appends a manual event, for outages observed while the
// monitor itself was offline.
func (s *Server) recordOutageHandler(c *gin.Context) {
	if s.events == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Outage log not configured"})
		return
	}
	var req struct {
		Type      string  `json:"type" binding:"required"`
		Voltage   float64 `json:"voltage"`
		Timestamp string  `json:"timestamp"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Type != "start" && req.Type != "end" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "type must be \"start\" or \"end\""})
		return
	}
	ts := time.Now()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "timestamp must be RFC3339"})
			return
		}
		ts = parsed
	}
	if err := s.events.Append(req.Type, ts, req.Voltage); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "event recorded"})
}

func (s *Server) clearOutagesHandler(c *gin.Context) {
	if s.events == nil {
		c.JSON(http.StatusOK, gin.H{"message": "nothing to clear"})
		return
	}
	if err := s.events.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "outage log cleared"})
}

const phaseStatsWindow = 14

type phaseStatsEntry struct {
	Date    string  `json:"date"`
	L1KWh   float64 `json:"l1_kwh"`
	L2KWh   float64 `json:"l2_kwh"`
	L3KWh   float64 `json:"l3_kwh"`
	L1Pct   float64 `json:"l1_pct"`
	L2Pct   float64 `json:"l2_pct"`
	L3Pct   float64 `json:"l3_pct"`
	L1Max   int     `json:"l1_max_w"`
	L2Max   int     `json:"l2_max_w"`
	L3Max   int     `json:"l3_max_w"`
	Samples int     `json:"samples"`
}

func (s *Server) phaseStatsHandler(c *gin.Context) {
	if s.phases == nil {
		c.JSON(http.StatusOK, []phaseStatsEntry{})
		return
	}
	days := s.phases.Days()

	dates := make([]string, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if len(dates) > phaseStatsWindow {
		dates = dates[:phaseStatsWindow]
	}

	out := make([]phaseStatsEntry, 0, len(dates))
	for _, d := range dates {
		day := days[d]
		entry := phaseStatsEntry{
			Date:    d,
			L1KWh:   day.L1Wh / 1000,
			L2KWh:   day.L2Wh / 1000,
			L3KWh:   day.L3Wh / 1000,
			L1Max:   day.L1Max,
			L2Max:   day.L2Max,
			L3Max:   day.L3Max,
			Samples: day.Samples,
		}
		total := day.L1Wh + day.L2Wh + day.L3Wh
		if total > 0 {
			entry.L1Pct = day.L1Wh / total * 100
			entry.L2Pct = day.L2Wh / total * 100
			entry.L3Pct = day.L3Wh / total * 100
		}
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) clearPhaseStatsHandler(c *gin.Context) {
	if s.phases == nil {
		c.JSON(http.StatusOK, gin.H{"message": "nothing to clear"})
		return
	}
	if err := s.phases.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "phase stats cleared"})
}

func (s *Server) phaseHistoryHandler(c *gin.Context) {
	if s.phases == nil {
		c.JSON(http.StatusOK, gin.H{"points": []stats.HistoryPoint{}, "dates": []string{}})
		return
	}
	date := c.DefaultQuery("date", time.Now().Format("2006-01-02"))
	points, dates := s.phases.History(date)
	c.JSON(http.StatusOK, gin.H{
		"date":   date,
		"points": points,
		"dates":  dates,
	})
}

func (s *Server) generatorHandler(c *gin.Context) {
	if s.generator == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}

	todayH := s.generator.RuntimeToday() / 3600
	monthH := s.generator.RuntimeMonth() / 3600

	resp := gin.H{
		"enabled":     true,
		"running":     s.generator.Running(),
		"today_hours": todayH,
		"month_hours": monthH,
		"days":        s.generator.Days(),
	}
	if s.genFuelLPerHour > 0 {
		resp["fuel_today_l"] = todayH * s.genFuelLPerHour
		resp["fuel_month_l"] = monthH * s.genFuelLPerHour
	}
	if s.genOilIntervalH > 0 {
		resp["oil_change_interval_hours"] = s.genOilIntervalH
		resp["hours_to_oil_change"] = s.genOilIntervalH - monthH
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) weatherHandler(c *gin.Context) {
	if s.weather == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "weather not configured"})
		return
	}
	data := s.weather.Latest()
	if data == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "weather not yet available"})
		return
	}
	c.JSON(http.StatusOK, data)
}

func (s *Server) readingsHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
		return
	}

	fromStr := c.Query("from")
	toStr := c.Query("to")
	limitStr := c.DefaultQuery("limit", "100")

	var limit int
	fmt.Sscanf(limitStr, "%d", &limit)
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	if fromStr != "" && toStr != "" {
		from, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'from' date format"})
			return
		}
		to, err := time.Parse(time.RFC3339, toStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid 'to' date format"})
			return
		}

		readings, err := s.db.GetReadingsByRange(from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, readings)
		return
	}

	readings, err := s.db.GetReadingsWithLimit(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, readings)
}

func (s *Server) latestReadingHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
		return
	}
	reading, err := s.db.GetLatestReading()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, reading)
}

func (s *Server) dailyStatsHandler(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "database not configured"})
		return
	}
	dateStr := c.DefaultQuery("date", time.Now().Format("2006-01-02"))
	date, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid date format"})
		return
	}

	daily, err := s.db.GetDailyStats(date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, daily)
}
