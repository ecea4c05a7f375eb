package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"podmill/internal/workflow"
)

// multipartOverhead is the slack allowed beyond the file size cap for
// multipart framing and headers.
const multipartOverhead = 1 << 20

// processPodcast runs the full pipeline synchronously. The response is
// always 200 with the run outcome; stage failures are reported inside the
// result rather than as an HTTP error.
func (s *Server) processPodcast(c *gin.Context) {
	req, cleanup, ok := s.episodeRequest(c)
	if !ok {
		return
	}
	defer cleanup()

	result := s.orch.Run(c.Request.Context(), req)
	c.JSON(http.StatusOK, result)
}

// uploadPodcast stores the file and schedules the remaining stages in the
// background, returning 202 with the job to poll.
func (s *Server) uploadPodcast(c *gin.Context) {
	req, cleanup, ok := s.episodeRequest(c)
	if !ok {
		return
	}
	defer cleanup()

	sub, err := s.orch.Submit(c.Request.Context(), req)
	if err != nil {
		failErr(c, s.logger, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"job_id":       sub.JobID,
		"upload_id":    sub.UploadID,
		"status_url":   "/api/v1/jobs/" + sub.JobID,
		"message":      sub.Message,
		"storage_info": sub.Object,
	})
}

// episodeRequest extracts the uploaded episode from the multipart form. It
// writes the failure response itself and reports ok=false when the request
// is unusable; the caller must invoke cleanup after the pipeline has
// consumed the body.
func (s *Server) episodeRequest(c *gin.Context) (workflow.Request, func(), bool) {
	ident, _ := identityFrom(c)

	if c.Request.ContentLength > s.maxUpload+multipartOverhead {
		fail(c, http.StatusRequestEntityTooLarge, codePayloadTooLarge,
			fmt.Sprintf("request exceeds maximum size of %d MB", s.maxUpload>>20))
		return workflow.Request{}, nil, false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload+multipartOverhead)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			fail(c, http.StatusRequestEntityTooLarge, codePayloadTooLarge,
				fmt.Sprintf("request exceeds maximum size of %d MB", s.maxUpload>>20))
		case errors.Is(err, http.ErrMissingFile):
			fail(c, http.StatusBadRequest, codeMissingFile, "multipart field \"file\" required")
		default:
			fail(c, http.StatusBadRequest, codeInvalidRequest, "invalid multipart request")
		}
		return workflow.Request{}, nil, false
	}
	if header.Size > s.maxUpload {
		file.Close()
		fail(c, http.StatusRequestEntityTooLarge, codePayloadTooLarge,
			fmt.Sprintf("file exceeds maximum size of %d MB", s.maxUpload>>20))
		return workflow.Request{}, nil, false
	}

	req := workflow.Request{
		UserID:      ident.UserID,
		Workspace:   ident.Workspace,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
	return req, func() { file.Close() }, true
}
