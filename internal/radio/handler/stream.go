package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/arung-agamani/denpa-radio/internal/radio/service"
	"github.com/arung-agamani/denpa-radio/internal/transcode"
	"github.com/gin-gonic/gin"
)

// StreamHandlers holds the gin route handlers for on-demand, cached
// per-track transcoding and its admin endpoints.
type StreamHandlers struct {
	svc *service.TranscodeService
}

func NewStreamHandlers(svc *service.TranscodeService) *StreamHandlers {
	return &StreamHandlers{svc: svc}
}

var formatByName = map[string]transcode.Format{
	"mp3":           transcode.FormatMP3,
	"ogg_opus":      transcode.FormatOGGOpus,
	"matroska_opus": transcode.FormatMatroskaOpus,
	"ogg_vorbis":    transcode.FormatOGGVorbis,
	"webm_vorbis":   transcode.FormatWebMVorbis,
}

// Track handles GET /stream/track/:id, dispatching to a live session, a
// cached file, or a direct-stream fallback depending on what the dispatcher
// finds (spec.md §4.1).
func (h *StreamHandlers) Track(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid track id"})
		return
	}

	format, ok := formatByName[c.DefaultQuery("format", "mp3")]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "unknown format"})
		return
	}

	bitrate, err := strconv.Atoi(c.DefaultQuery("bitrate", "128000"))
	if err != nil || bitrate <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid bitrate"})
		return
	}

	offsetSecs, err := strconv.ParseFloat(c.DefaultQuery("offset", "0"), 64)
	if err != nil || offsetSecs < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid offset"})
		return
	}

	var stream *int
	if s := c.Query("stream"); s != "" {
		idx, err := strconv.Atoi(s)
		if err != nil || idx < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "invalid stream index"})
			return
		}
		stream = &idx
	}

	req := service.StreamRequest{
		TrackID:       id,
		Format:        format,
		Bitrate:       bitrate,
		Offset:        time.Duration(offsetSecs * float64(time.Second)),
		Stream:        stream,
		StripMetadata: c.Query("strip_metadata") == "true",
		WantEstimate:  c.Query("estimate") != "false",
	}

	handler, _, err := h.svc.Resolve(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrTrackNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "track not found"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "transcoder unavailable"})
		return
	}

	handler.ServeHTTP(c.Writer, c.Request)
}

// Status handles GET /api/transcode/status (protected): reports the number
// of live transcode sessions held by the dispatcher.
func (h *StreamHandlers) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"active_sessions": h.svc.ActiveSessions(),
	})
}

// Sweep handles POST /api/transcode/sweep (protected): runs a manual cache
// eviction pass. max_age_seconds and max_bytes are both optional; zero/unset
// disables that half of the sweep (spec.md §9 eviction open question).
func (h *StreamHandlers) Sweep(c *gin.Context) {
	var body struct {
		MaxAgeSeconds int64 `json:"max_age_seconds"`
		MaxBytes      int64 `json:"max_bytes"`
	}
	_ = c.ShouldBindJSON(&body)

	result, err := h.svc.Sweep(time.Duration(body.MaxAgeSeconds)*time.Second, body.MaxBytes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "sweep failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"files_removed": result.FilesRemoved,
		"bytes_freed":   result.BytesFreed,
		"files_kept":    result.FilesKept,
	})
}
