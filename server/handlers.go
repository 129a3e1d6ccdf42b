package server

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/maastricht-university/audio-analyzer/errs"
	"github.com/maastricht-university/audio-analyzer/models"
)

type errorResponse struct {
	Detail string `json:"detail"`
}

type successResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message,omitempty"`
}

// fail reports err with the status its marker maps to.
func (s *Server) fail(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)
	detail := err.Error()
	switch status {
	case http.StatusNotFound:
		detail = "Not found"
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		s.Log.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
	}
	c.AbortWithStatusJSON(status, errorResponse{Detail: detail})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Detail: msg})
}

// intQuery reads a non-negative integer query parameter.
func intQuery(c *gin.Context, key string, def, floor int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < floor {
		return 0, fmt.Errorf("%s must be an integer >= %d", key, floor)
	}
	return v, nil
}

func (s *Server) health(c *gin.Context) {
	ok := s.Index.Ping(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"success": ok, "elastic": ok})
}

func (s *Server) esStatus(c *gin.Context) {
	info, err := s.Index.Info(c.Request.Context())
	if err != nil {
		s.Log.WithError(err).Error("elasticsearch status failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Detail: "Connection failed"})
		return
	}
	name := info.ClusterName
	if name == "" {
		name = "unknown"
	}
	c.JSON(http.StatusOK, successResponse{Success: true, Message: "Connected to " + name})
}

func (s *Server) reindex(c *gin.Context) {
	if err := s.Index.EnsureIndex(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse{Success: true})
}

func (s *Server) modelStates(c *gin.Context) {
	out := map[models.Capability]string{}
	if s.Models != nil {
		for capability, state := range s.Models.States() {
			out[capability] = state.String()
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) analyze(c *gin.Context) {
	if s.MaxUploadMB > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.MaxUploadMB<<20)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge,
				errorResponse{Detail: fmt.Sprintf("File too large. Maximum size is %dMB", s.MaxUploadMB)})
			return
		}
		s.Metrics.AnalysisRequests.WithLabelValues("rejected").Inc()
		badRequest(c, "No file uploaded")
		return
	}
	f, err := fh.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	token, err := s.Store.Save(f)
	f.Close()
	if err != nil {
		s.fail(c, err)
		return
	}

	src, err := s.Store.Path(token)
	if err != nil {
		s.fail(c, err)
		return
	}
	rec, err := s.Analyzer.Analyze(c.Request.Context(), src, fh.Filename)
	if err != nil {
		s.Metrics.AnalysisRequests.WithLabelValues("error").Inc()
		s.Log.WithError(err).WithField("file", fh.Filename).Error("analysis failed")
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Detail: err.Error()})
		return
	}
	s.Metrics.AnalysisRequests.WithLabelValues("success").Inc()
	if rec.Duration != nil {
		s.Metrics.AudioDuration.Observe(*rec.Duration)
	}
	rec.StoredFileName = token
	rec.StoredPath = path.Join(filepath.Base(s.Store.Dir()), token)
	c.JSON(http.StatusOK, rec)
}

func (s *Server) save(c *gin.Context) {
	var doc map[string]any
	if err := c.ShouldBindJSON(&doc); err != nil {
		badRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	id, err := s.Index.Save(c.Request.Context(), doc)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse{Success: true, ID: id})
}

func (s *Server) listItems(c *gin.Context) {
	size, err := intQuery(c, "size", 50, 1)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	docs, err := s.Index.List(c.Request.Context(), size)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

func (s *Server) getItem(c *gin.Context) {
	doc, err := s.Index.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (s *Server) updateItem(c *gin.Context) {
	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		badRequest(c, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.Index.Update(c.Request.Context(), c.Param("id"), fields); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse{Success: true})
}

func (s *Server) deleteItem(c *gin.Context) {
	if err := s.Index.Delete(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) search(c *gin.Context) {
	size, err := intQuery(c, "size", 25, 1)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	from, err := intQuery(c, "from", 0, 0)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	docs, total, err := s.Index.Search(c.Request.Context(), c.Query("q"), size, from)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("X-Total-Count", strconv.FormatInt(total, 10))
	c.JSON(http.StatusOK, docs)
}

func (s *Server) stats(c *gin.Context) {
	st, err := s.Index.Stats(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) audio(c *gin.Context) {
	resp, err := s.Streamer.Serve(c.Param("filename"), c.GetHeader("Range"))
	if err != nil {
		s.fail(c, err)
		return
	}
	if c.Request.Method == http.MethodHead {
		resp.Body = nil
	}
	n, err := resp.Write(c.Writer)
	s.Metrics.BytesStreamed.Add(float64(n))
	if err != nil {
		s.Log.WithError(err).WithField("file", c.Param("filename")).Debug("audio stream interrupted")
	}
}
