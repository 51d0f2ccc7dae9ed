package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zoobzio/magma"
)

// FlowStatus describes one flow for the status endpoints
type FlowStatus struct {
	ID        magma.FlowID   `json:"id"`
	Route     string         `json:"route"`
	Type      magma.Type     `json:"type"`
	State     string         `json:"state"`
	Modified  *time.Time     `json:"modified,omitempty"`
	LastError string         `json:"last_error,omitempty"`
	Failures  []FailureEntry `json:"failures,omitempty"`
}

// FailureEntry is one recorded run failure
type FailureEntry struct {
	At    time.Time `json:"at"`
	Stage string    `json:"stage"`
	Error string    `json:"error"`
}

// HealthResponse reports whether every flow's last run succeeded
type HealthResponse struct {
	Status string       `json:"status"`
	Flows  []FlowStatus `json:"flows"`
}

func statusOf(f *magma.Flow, withFailures bool) FlowStatus {
	st := FlowStatus{
		ID:    f.ID(),
		Route: f.Route().String(),
		Type:  f.Config().Type,
		State: f.State().String(),
	}
	if modified, ok := f.Modified(); ok {
		st.Modified = &modified
	}
	if err := f.LastError(); err != nil {
		st.LastError = err.Error()
	}
	if withFailures {
		for _, failure := range f.FailureHistory() {
			st.Failures = append(st.Failures, FailureEntry{
				At:    failure.At,
				Stage: failure.Stage,
				Error: failure.Err.Error(),
			})
		}
	}
	return st
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{Status: "ok", Flows: []FlowStatus{}}
	code := http.StatusOK
	for _, f := range s.engine.Flows() {
		st := statusOf(f, false)
		if st.LastError != "" {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		resp.Flows = append(resp.Flows, st)
	}
	c.JSON(code, resp)
}

func (s *Server) listFlows(c *gin.Context) {
	flows := s.engine.Flows()
	resp := make([]FlowStatus, 0, len(flows))
	for _, f := range flows {
		resp = append(resp, statusOf(f, false))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getFlow(c *gin.Context) {
	f, ok := s.flowParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, statusOf(f, true))
}

// flowParam resolves the :flowID path parameter, writing the error
// response itself when it cannot.
func (s *Server) flowParam(c *gin.Context) (*magma.Flow, bool) {
	id, err := strconv.ParseUint(c.Param("flowID"), 10, 64)
	if err != nil {
		s.error(c, http.StatusBadRequest, "invalid flow id")
		return nil, false
	}
	f, ok := s.engine.Flow(magma.FlowID(id))
	if !ok {
		s.error(c, http.StatusNotFound, "flow not found")
		return nil, false
	}
	return f, true
}
