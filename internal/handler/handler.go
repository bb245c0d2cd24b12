package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/config"
	"faceattend/internal/importer"
)

// Pinger reports backend connectivity for the health endpoint.
type Pinger interface {
	Healthy(ctx context.Context) bool
}

// FaceHealth reports face service availability.
type FaceHealth interface {
	Health(ctx context.Context) error
}

// Bootstrapper creates the service-owned tables.
type Bootstrapper interface {
	EnsureSchema(ctx context.Context) error
}

// Feed reads the recent-attendance list maintained by the worker.
type Feed interface {
	Recent(ctx context.Context, limit int) ([]string, error)
}

// Handler wires HTTP routes to the attendance service.
type Handler struct {
	cfg    config.App
	svc    *attendance.Service
	imp    *importer.Importer
	schema Bootstrapper
	db     Pinger
	redis  Pinger
	face   FaceHealth
	feed   Feed
}

// New creates a handler. feed and face may be nil when not configured.
func New(cfg config.App, svc *attendance.Service, imp *importer.Importer, schema Bootstrapper, db, redis Pinger, face FaceHealth, feed Feed) *Handler {
	return &Handler{cfg: cfg, svc: svc, imp: imp, schema: schema, db: db, redis: redis, face: face, feed: feed}
}

// Register mounts all routes on the engine.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/", h.Health)
	r.POST("/register_face", h.RegisterFace)
	r.POST("/mark_attendance", h.MarkAttendance)
	r.POST("/api/mobile/mark_attendance", h.MobileMarkAttendance)
	r.POST("/api/student/login", h.Login)
	r.GET("/api/student/stats", auth.Optional(h.cfg.JWTSigningKey, h.cfg.JWTIssuer), h.StudentStats)
	r.GET("/api/attendance/recent", h.RecentAttendance)
	r.GET("/update_db", h.UpdateDB)
	r.GET("/setup_face_table", h.SetupFaceTable)
}

// Health reports service and dependency status.
func (h *Handler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	dbOK := h.db != nil && h.db.Healthy(ctx)
	redisOK := h.redis != nil && h.redis.Healthy(ctx)
	faceOK := h.face == nil || h.face.Health(ctx) == nil

	status := http.StatusOK
	if !dbOK {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"status": "ok", "db": dbOK, "redis": redisOK, "face_service": faceOK})
}

// RegisterFace stores one embedding for a student; re-registration
// overwrites the previous one.
func (h *Handler) RegisterFace(c *gin.Context) {
	studentID := c.PostForm("student_id")
	if studentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file or student_id"})
		return
	}
	image, filename, ok := h.readImage(c)
	if !ok {
		return
	}

	if _, err := h.svc.RegisterFace(c.Request.Context(), studentID, image, filename); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "face registered successfully"})
}

// MarkAttendance matches an image against every registered face.
func (h *Handler) MarkAttendance(c *gin.Context) {
	image, filename, ok := h.readImage(c)
	if !ok {
		return
	}
	h.mark(c, func(ctx context.Context) (*attendance.MatchResult, error) {
		return h.svc.MarkAttendance(ctx, image, filename)
	})
}

// MobileMarkAttendance is the geofenced variant; latitude and longitude
// are required form fields.
func (h *Handler) MobileMarkAttendance(c *gin.Context) {
	lat, latErr := strconv.ParseFloat(c.PostForm("latitude"), 64)
	lon, lonErr := strconv.ParseFloat(c.PostForm("longitude"), 64)
	if latErr != nil || lonErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude and longitude required"})
		return
	}
	image, filename, ok := h.readImage(c)
	if !ok {
		return
	}
	h.mark(c, func(ctx context.Context) (*attendance.MatchResult, error) {
		return h.svc.MarkAttendanceAt(ctx, lat, lon, image, filename)
	})
}

func (h *Handler) mark(c *gin.Context, fn func(ctx context.Context) (*attendance.MatchResult, error)) {
	res, err := fn(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if !res.Matched {
		c.JSON(http.StatusOK, gin.H{"match": false, "student": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"match":      true,
		"student_id": res.Student.ID,
		"name":       res.Student.Name,
		"roll_no":    res.Student.RollNumber,
		"confidence": res.Confidence,
	})
}

// Login checks credentials and issues an access token.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	student, err := h.svc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, attendance.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid credentials"})
			return
		}
		h.fail(c, err)
		return
	}

	token, err := auth.Issue(student.ID, student.RollNumber, student.Name, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"token":      token.Value,
		"expires_at": token.ExpiresAt.Unix(),
		"student":    student,
	})
}

// StudentStats aggregates the external attendance table. The roll number
// comes from the query string or from a bearer token issued at login.
func (h *Handler) StudentStats(c *gin.Context) {
	roll := c.Query("roll_number")
	if roll == "" {
		if claims, ok := auth.FromContext(c); ok {
			roll = claims.Roll
		}
	}
	if roll == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roll_number required"})
		return
	}

	report, err := h.svc.Stats(c.Request.Context(), roll)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// RecentAttendance serves the worker-maintained feed.
func (h *Handler) RecentAttendance(c *gin.Context) {
	if h.feed == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "feed not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	entries, err := h.feed.Recent(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}

	events := make([]attendance.Event, 0, len(entries))
	for _, e := range entries {
		var evt attendance.Event
		if err := json.Unmarshal([]byte(e), &evt); err == nil {
			events = append(events, evt)
		}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// UpdateDB runs the batch dataset import synchronously and returns its
// summary.
func (h *Handler) UpdateDB(c *gin.Context) {
	if h.imp == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "importer not configured"})
		return
	}
	sum, err := h.imp.Run(c.Request.Context(), h.cfg.DatasetPath)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// SetupFaceTable bootstraps the service-owned tables. Idempotent.
func (h *Handler) SetupFaceTable(c *gin.Context) {
	if err := h.schema.EnsureSchema(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "face tables ready"})
}

func (h *Handler) readImage(c *gin.Context) ([]byte, string, bool) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
		return nil, "", false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return nil, "", false
	}
	return data, header.Filename, true
}

// fail maps service errors to HTTP statuses. Unexpected errors are logged
// server-side and surfaced as a generic message, never as raw error text.
func (h *Handler) fail(c *gin.Context, err error) {
	var gerr *attendance.GeofenceError
	switch {
	case errors.Is(err, attendance.ErrNoFaceDetected):
		c.JSON(http.StatusBadRequest, gin.H{"error": "no face detected"})
	case errors.Is(err, attendance.ErrStudentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
	case errors.Is(err, attendance.ErrNoRegisteredFaces):
		c.JSON(http.StatusNotFound, gin.H{"error": "no students registered"})
	case errors.As(err, &gerr):
		c.JSON(http.StatusForbidden, gin.H{"error": gerr.Error(), "distance_m": gerr.DistanceM})
	default:
		log.Printf("request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
