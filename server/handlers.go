package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arkeyez/arkdoc/archive"
	"github.com/arkeyez/arkdoc/auth"
	"github.com/arkeyez/arkdoc/erp"
	"github.com/arkeyez/arkdoc/imaging"
	"github.com/arkeyez/arkdoc/observability"
	"github.com/arkeyez/arkdoc/stream"
)

const (
	thumbnailEdge   = 300
	maxUploadBytes  = 32 << 20
	defaultListSize = 50
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	mode := "simulation"
	if s.model.IsLoaded() {
		mode = "real"
	}
	c.JSON(http.StatusOK, gin.H{
		"model_loaded":      s.model.IsLoaded(),
		"model_state":       s.model.State().String(),
		"load_progress":     s.model.Progress(),
		"mode":              mode,
		"fusion_enabled":    true,
		"total_predictions": s.model.Predictions(),
		"uptime_seconds":    int64(s.model.Uptime().Seconds()),
		"erpnext_connected": s.erp != nil,
		"websocket_clients": s.registry.Count(),
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	if req.Username != s.cfg.AdminUser || !auth.CheckPassword(s.adminHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	token, err := s.auth.Issue(req.Username)
	if err != nil {
		s.log.Error("issue token", observability.Error("err", err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"token_type": "Bearer",
		"expires_in": int64(auth.DefaultTokenTTL.Seconds()),
	})
}

// classifyEntry is one per-file result in the classify-multi response.
// Error is set instead of the record when the file could not be processed.
type classifyEntry struct {
	stream.Record
	Thumbnail string `json:"thumbnail,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleClassifyMulti(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	files := c.Request.MultipartForm.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	results := make([]classifyEntry, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			results = append(results, classifyEntry{
				Record: stream.Record{Filename: fh.Filename},
				Error:  "open upload: " + err.Error(),
			})
			continue
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			results = append(results, classifyEntry{
				Record: stream.Record{Filename: fh.Filename},
				Error:  "read upload: " + err.Error(),
			})
			continue
		}

		out, err := s.pipe.Classify(c.Request.Context(), fh.Filename, data)
		if err != nil {
			results = append(results, classifyEntry{
				Record: stream.Record{Filename: fh.Filename},
				Error:  err.Error(),
			})
			continue
		}

		entry := classifyEntry{Record: out.Record()}
		if img, err := imaging.Decode(data); err == nil {
			if thumb, err := imaging.Thumbnail(img, thumbnailEdge); err == nil {
				entry.Thumbnail = thumb
			}
		}
		results = append(results, entry)
		s.archiveOutcome(c, entry.Record)
	}

	c.JSON(http.StatusOK, gin.H{
		"results":        results,
		"total_files":    len(files),
		"total_pages":    len(files),
		"is_simulation":  !s.model.IsLoaded(),
		"fusion_enabled": true,
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

func (s *Server) archiveOutcome(c *gin.Context, rec stream.Record) {
	if s.store == nil {
		return
	}
	doc := archive.Document{
		ID:            uuid.NewString(),
		Filename:      rec.Filename,
		DocumentClass: rec.DocumentClass,
		Confidence:    rec.Confidence,
		CNNConfidence: rec.CNNConfidence,
		OCRBoost:      rec.OCRBoost,
		FusionApplied: rec.FusionApplied,
		Keywords:      strings.Join(rec.Keywords, ","),
		Summary:       rec.Summary,
		UploadedBy:    c.GetString("user"),
	}
	if rec.OCRText != nil {
		doc.OCRText = *rec.OCRText
	}
	if err := s.store.SaveDocument(doc); err != nil {
		s.log.Warn("archive classification",
			observability.String("filename", rec.Filename),
			observability.Error("err", err))
	}
}

func (s *Server) handleERPInsert(c *gin.Context) {
	if s.erp == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "erpnext not configured"})
		return
	}
	var doc erp.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid document payload"})
		return
	}
	if doc.UploadedBy == "" {
		doc.UploadedBy = c.GetString("user")
	}
	name, err := s.erp.CreateDocument(c.Request.Context(), doc)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, erp.ErrUnavailable) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "message": "document created"})
}

func (s *Server) handleERPInsertBulk(c *gin.Context) {
	if s.erp == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "erpnext not configured"})
		return
	}
	var req struct {
		Documents []erp.Document `json:"documents" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Documents) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "documents array is required"})
		return
	}
	user := c.GetString("user")
	for i := range req.Documents {
		if req.Documents[i].UploadedBy == "" {
			req.Documents[i].UploadedBy = user
		}
	}
	res := s.erp.BulkInsert(c.Request.Context(), req.Documents)
	c.JSON(http.StatusOK, res)
}

// handleHistory lists recent classifications, preferring ERPNext and falling
// back to the local archive for reads.
func (s *Server) handleHistory(c *gin.Context) {
	limit := queryInt(c, "limit", defaultListSize)

	if s.erp != nil {
		docs, err := s.erp.GetDocuments(c.Request.Context(), nil, limit)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"documents": docs, "source": "erpnext"})
			return
		}
		s.log.Warn("erpnext history unavailable", observability.Error("err", err))
	}
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no history backend available"})
		return
	}
	docs, err := s.store.Documents(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "source": "archive"})
}

func (s *Server) handleStats(c *gin.Context) {
	if s.erp != nil {
		stats, err := s.erp.Statistics(c.Request.Context())
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"stats": stats, "source": "erpnext"})
			return
		}
		s.log.Warn("erpnext stats unavailable", observability.Error("err", err))
	}
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no stats backend available"})
		return
	}
	stats, err := s.store.Statistics()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "source": "archive"})
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v := c.Query(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
