package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/forgeplane/forgeplane/pkg/provision"
	"github.com/forgeplane/forgeplane/pkg/stores"
)

// errorResponse is the error envelope for every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(c *gin.Context, err error) {
	c.JSON(provision.HTTPStatus(err), errorResponse{Error: err.Error()})
}

// createProject admits a project-creation workflow and answers 202 with the
// id to poll.
func (s *Server) createProject(c *gin.Context) {
	var req provision.ProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, provision.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.writeError(c, provision.NewValidationError(err.Error()))
		return
	}

	id, err := s.service.Submit(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"projectName":       req.ProjectName,
		"idProjectCreation": id,
	})
}

// projectStatus answers the workflow state view for polling.
func (s *Server) projectStatus(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		s.writeError(c, provision.NewValidationError("workflow id must be numeric"))
		return
	}

	record, err := s.service.Status(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorResponse{Error: "unknown workflow id"})
			return
		}
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// createResource executes a single resource type, asynchronously by default
// or synchronously with ?wait=true.
func (s *Server) createResource(c *gin.Context) {
	var req provision.ResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, provision.NewValidationError("invalid request body: "+err.Error()))
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		s.writeError(c, provision.NewValidationError(err.Error()))
		return
	}

	if c.Query("wait") == "true" {
		token, result, err := s.service.ExecuteResourceTracked(c.Request.Context(), &req)
		if err != nil {
			s.writeError(c, err)
			return
		}
		if result.StatusCode != http.StatusOK {
			c.JSON(result.StatusCode, gin.H{"jobId": token, "error": result.Message})
			return
		}
		c.JSON(http.StatusOK, gin.H{"jobId": token, "outputs": result.Outputs})
		return
	}

	token, err := s.service.SubmitResource(c.Request.Context(), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": token})
}

// resourceStatus answers the job record for polling.
func (s *Server) resourceStatus(c *gin.Context) {
	job, err := s.service.JobStatus(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		if errors.Is(err, stores.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorResponse{Error: "unknown job id"})
			return
		}
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// listTemplates answers the manifest list.
func (s *Server) listTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"templates": s.registry.List()})
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
