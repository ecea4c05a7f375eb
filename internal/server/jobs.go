package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"podmill/internal/jobs"
)

// getJob returns one job. Jobs are only visible to their owner; a foreign
// job is reported as forbidden rather than hidden, matching the cancel
// behavior.
func (s *Server) getJob(c *gin.Context) {
	ident, _ := identityFrom(c)
	job, ok := s.tracker.Get(c.Param("id"))
	if !ok {
		fail(c, http.StatusNotFound, codeNotFound, "job not found")
		return
	}
	if job.UserID != ident.UserID {
		fail(c, http.StatusForbidden, codeForbidden, "job belongs to another user")
		return
	}
	c.JSON(http.StatusOK, job)
}

// listJobs returns the caller's jobs, newest first. The active query flag
// filters out finished jobs.
func (s *Server) listJobs(c *gin.Context) {
	ident, _ := identityFrom(c)
	listed := s.tracker.ListForUser(ident.UserID, queryFlag(c, "active"))
	c.JSON(http.StatusOK, gin.H{
		"jobs":  listed,
		"count": len(listed),
	})
}

// cancelJob aborts a pending or running job on behalf of its owner.
func (s *Server) cancelJob(c *gin.Context) {
	ident, _ := identityFrom(c)
	id := c.Param("id")
	err := s.tracker.Cancel(id, ident.UserID)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		fail(c, http.StatusNotFound, codeNotFound, "job not found")
	case errors.Is(err, jobs.ErrNotOwner):
		fail(c, http.StatusForbidden, codeForbidden, "job belongs to another user")
	case errors.Is(err, jobs.ErrFinished):
		fail(c, http.StatusConflict, codeConflict, "job already finished")
	case err != nil:
		failErr(c, s.logger, err)
	default:
		c.JSON(http.StatusOK, gin.H{
			"job_id":    id,
			"cancelled": true,
		})
	}
}

func queryFlag(c *gin.Context, name string) bool {
	value := strings.TrimSpace(c.Query(name))
	if value == "" {
		return false
	}
	parsed, err := strconv.ParseBool(value)
	return err == nil && parsed
}
