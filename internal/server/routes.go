package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/pubsubd/internal/events"
)

// RegisterRoutes sets up the admin and WebSocket routes.
func (s *Server) RegisterRoutes() {
	s.E.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	api := s.E.Group("/api")
	api.GET("/topics", s.listTopics)
	api.GET("/topics/:name", s.getTopic)
	api.GET("/stats", s.getStats)

	s.E.GET("/ws", s.ws.Handler(s.baseCtx))
}

// topicDetail is the body of GET /api/topics/:name.
type topicDetail struct {
	Name        string   `json:"name"`
	Subscribers []string `json:"subscribers"`
}

// statsResponse is the body of GET /api/stats.
type statsResponse struct {
	events.StatsSnapshot
	Topics int `json:"topics"`
}

func (s *Server) listTopics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Registry.Stats())
}

func (s *Server) getTopic(c echo.Context) error {
	name := c.Param("name")
	keys, ok := s.Registry.Keys(name)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "topic not found")
	}
	return c.JSON(http.StatusOK, topicDetail{Name: name, Subscribers: keys})
}

func (s *Server) getStats(c echo.Context) error {
	resp := statsResponse{Topics: s.Registry.Len()}
	if s.Stats != nil {
		resp.StatsSnapshot = s.Stats.Snapshot()
	}
	return c.JSON(http.StatusOK, resp)
}
