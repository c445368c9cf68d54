package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/entrhq/pilot/pkg/orchestrator"
	"github.com/entrhq/pilot/pkg/types"
)

type executeTaskRequest struct {
	Task      string `json:"task"`
	SessionID string `json:"session_id"`
}

func (s *Server) healthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "API server is running"})
}

func (s *Server) executeTask(c *gin.Context) {
	var req executeTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, fmt.Sprintf("Validation error: %v", err))
		return
	}

	res, err := s.tasks.Submit(c.Request.Context(), req.Task, req.SessionID)
	var busy *orchestrator.TaskRunningError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"success":    true,
			"message":    res.Message,
			"session_id": res.SessionID,
			"task_id":    res.TaskID,
		})
	case errors.As(err, &busy):
		c.JSON(http.StatusOK, gin.H{
			"success":         false,
			"error":           busy.Error(),
			"current_session": busy.CurrentSession,
		})
	case errors.Is(err, orchestrator.ErrNoTask):
		fail(c, err.Error())
	default:
		_ = c.Error(err)
		fail(c, fmt.Sprintf("Unexpected error: %v", err))
	}
}

func (s *Server) taskStatus(c *gin.Context) {
	opts := orchestrator.PollOptions{
		Detailed: queryBool(c, "detailed"),
		Minimal:  queryBool(c, "minimal"),
		BaseURL:  baseURL(c.Request),
	}
	st, err := s.tasks.Poll(c.Request.Context(), c.Param("session_id"), opts)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusOK, gin.H{"success": false, "status": orchestrator.StatusError, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) cancelTask(c *gin.Context) {
	s.control(c, s.tasks.Cancel, "cancelling")
}

func (s *Server) pauseTask(c *gin.Context) {
	s.control(c, s.tasks.Pause, "pausing")
}

func (s *Server) resumeTask(c *gin.Context) {
	s.control(c, s.tasks.Resume, "resuming")
}

// control runs a cancel, pause or resume request against the live task.
func (s *Server) control(c *gin.Context, op func(context.Context, string) (string, error), verb string) {
	msg, err := op(c.Request.Context(), c.Param("session_id"))
	var mismatch *orchestrator.SessionMismatchError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
	case errors.Is(err, orchestrator.ErrNoActiveTask),
		errors.Is(err, orchestrator.ErrAgentNotStarted),
		errors.As(err, &mismatch):
		fail(c, err.Error())
	default:
		_ = c.Error(err)
		fail(c, fmt.Sprintf("Error %s task: %v", verb, err))
	}
}

func (s *Server) chatHistory(c *gin.Context) {
	messages := s.tasks.ChatHistory(c.Request.Context())
	if messages == nil {
		messages = []*types.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "messages": messages})
}

func (s *Server) taskResult(c *gin.Context) {
	bundle, err := s.tasks.Result(c.Request.Context(), c.Param("session_id"), baseURL(c.Request))
	if err != nil {
		fail(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, bundle)
}

func fail(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, gin.H{"success": false, "error": msg})
}

func queryBool(c *gin.Context, key string) bool {
	v, err := strconv.ParseBool(c.Query(key))
	return err == nil && v
}

// baseURL is the scheme and host the client used to reach the server.
func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
