// Package api exposes the room state and operator overrides over HTTP.
package api

import (
	"net/http"
	"strconv"

	"codeberg.org/mutker/serverroom/internal/errors"
	"codeberg.org/mutker/serverroom/internal/logger"
	"codeberg.org/mutker/serverroom/internal/monitoring"
	"github.com/gin-gonic/gin"
)

const defaultEventCount = 20

type Deps struct {
	Engine    Engine
	Events    EventLog
	Alarm     Alarm
	Incidents Incidents
	Executor  Executor
	Logger    logger.Logger
}

type Handler struct {
	engine    Engine
	events    EventLog
	alarm     Alarm
	incidents Incidents
	exec      Executor
	log       logger.Logger
}

func NewHandler(d Deps) *Handler {
	log := d.Logger
	if log == nil {
		log = logger.Component("api")
	}
	return &Handler{
		engine:    d.Engine,
		events:    d.Events,
		alarm:     d.Alarm,
		incidents: d.Incidents,
		exec:      d.Executor,
		log:       log,
	}
}

// Register mounts every route under /api/v1
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/api/v1")

	v1.GET("/servers", h.ListServers)
	v1.GET("/servers/:index", h.GetServer)
	v1.PUT("/servers/:index/name", h.SetName)
	v1.PUT("/servers/:index/status", h.SetStatus)
	v1.PUT("/servers/:index/cpu", h.SetCPU)
	v1.GET("/room", h.GetRoom)
	v1.GET("/events", h.ListEvents)
	v1.GET("/alarm", h.GetAlarm)
	v1.GET("/incident", h.GetIncident)
	v1.POST("/incident/toggle", h.ToggleIncident)
}

func (h *Handler) ListServers(c *gin.Context) {
	var servers []serverDTO
	h.exec.Do(func() {
		servers = newServerDTOs(h.engine.ServerReadings())
	})
	c.JSON(http.StatusOK, gin.H{"servers": servers})
}

func (h *Handler) GetServer(c *gin.Context) {
	index, ok := parseIndex(c)
	if !ok {
		return
	}

	var reading monitoring.ServerReading
	var found bool
	h.exec.Do(func() {
		reading, found = h.engine.ServerReading(index)
	})
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": errors.GetErrorMessage(errors.ErrInvalidServerIndex)})
		return
	}

	c.JSON(http.StatusOK, newServerDTO(reading))
}

func (h *Handler) SetName(c *gin.Context) {
	index, ok := parseIndex(c)
	if !ok {
		return
	}

	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mutate(c, index, func() error {
		return h.engine.SetDisplayName(index, req.Name)
	})
}

func (h *Handler) SetStatus(c *gin.Context) {
	index, ok := parseIndex(c)
	if !ok {
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := monitoring.StatusNormal
	if req.Status != "" {
		parsed, err := monitoring.ParseStatus(req.Status)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status = parsed
	} else if *req.Enabled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required when enabled"})
		return
	}

	h.mutate(c, index, func() error {
		return h.engine.SetManualStatus(index, *req.Enabled, status)
	})
}

func (h *Handler) SetCPU(c *gin.Context) {
	index, ok := parseIndex(c)
	if !ok {
		return
	}

	var req cpuRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.mutate(c, index, func() error {
		return h.engine.SetManualCPULoad(index, *req.Enabled, req.Value)
	})
}

// mutate runs fn on the simulation and answers with the updated server
func (h *Handler) mutate(c *gin.Context, index int, fn func() error) {
	var err error
	var reading monitoring.ServerReading
	h.exec.Do(func() {
		if err = fn(); err != nil {
			return
		}
		reading, _ = h.engine.ServerReading(index)
	})

	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newServerDTO(reading))
}

func (h *Handler) GetRoom(c *gin.Context) {
	var room roomDTO
	h.exec.Do(func() {
		room = roomDTO{
			Time:                h.engine.Now(),
			Temperature:         h.engine.RoomTemperature(),
			MainRoomTemperature: h.engine.MainRoomTemperature(),
		}
	})
	c.JSON(http.StatusOK, room)
}

func (h *Handler) ListEvents(c *gin.Context) {
	n := defaultEventCount
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be an integer"})
			return
		}
		n = parsed
	}

	var events []eventDTO
	var total int
	h.exec.Do(func() {
		events = newEventDTOs(h.events.Recent(n))
		total = h.events.Count()
	})

	c.JSON(http.StatusOK, gin.H{"events": events, "total": total})
}

func (h *Handler) GetAlarm(c *gin.Context) {
	var alarm alarmDTO
	h.exec.Do(func() {
		alarm = alarmDTO{
			Active:   h.alarm.IsActive(),
			VisualOn: h.alarm.IsVisualOn(),
		}
	})
	c.JSON(http.StatusOK, alarm)
}

func (h *Handler) GetIncident(c *gin.Context) {
	var dto incidentDTO
	var found bool
	h.exec.Do(func() {
		snap, ok := h.incidents.IncidentSnapshot()
		if !ok {
			return
		}
		found = true
		dto = incidentDTO{
			Showing:  h.incidents.IsShowingIncident(),
			Snapshot: newSnapshotDTO(snap),
		}
	})

	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": errors.GetErrorMessage(errors.ErrNoIncident)})
		return
	}

	c.JSON(http.StatusOK, dto)
}

func (h *Handler) ToggleIncident(c *gin.Context) {
	var err error
	var showing bool
	h.exec.Do(func() {
		err = h.incidents.ToggleShowIncident()
		showing = h.incidents.IsShowingIncident()
	})

	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"showing": showing})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.HasCode(err, errors.ErrInvalidServerIndex):
		status = http.StatusNotFound
	case errors.HasCode(err, errors.ErrInvalidStatus), errors.HasCode(err, errors.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.HasCode(err, errors.ErrNoIncident):
		status = http.StatusConflict
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

func parseIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "server index must be an integer"})
		return 0, false
	}
	return index, true
}
