// internal/api/handlers.go
package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Corphon/LectureCompanion/internal/di"
	"github.com/Corphon/LectureCompanion/internal/models"
	"github.com/Corphon/LectureCompanion/internal/services"
	"github.com/Corphon/LectureCompanion/internal/utils"
	"github.com/gin-gonic/gin"
)

var (
	mediaExtensions = map[string]bool{
		".mp3": true, ".wav": true, ".m4a": true, ".flac": true, ".ogg": true,
		".mp4": true, ".mkv": true, ".mov": true, ".webm": true, ".avi": true,
	}
	slideExtensions = map[string]bool{
		".pdf": true, ".pptx": true, ".docx": true,
		".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true,
	}
)

// Handler serves the HTTP API.
type Handler struct {
	Lessons   *services.LessonService
	Alignment *services.AlignmentService
	Study     *services.StudyService
	Deviation *services.DeviationService
	Jobs      *services.JobService
	Ingest    *services.IngestService
	LLM       *services.LLMService
	Response  *ResponseHelper

	maxUpload int64
	ws        *JobStreamer
}

// NewHandler builds a handler over the container's services.
func NewHandler(c *di.Container) *Handler {
	return &Handler{
		Lessons:   c.Lessons,
		Alignment: c.Alignment,
		Study:     c.Study,
		Deviation: c.Deviation,
		Jobs:      c.Jobs,
		Ingest:    c.Ingest,
		LLM:       c.LLM,
		Response:  NewResponseHelper(c.Metrics),
		maxUpload: c.Config.MaxUploadMB << 20,
		ws:        NewJobStreamer(c.Jobs, c.Config.CORSOrigins),
	}
}

// Health reports liveness and whether a model provider is usable.
func (h *Handler) Health(c *gin.Context) {
	status := h.LLM.Status()
	h.Response.Success(c, gin.H{
		"status":       "ok",
		"llm_ready":    status.Ready,
		"llm_provider": status.Provider,
	})
}

// ---- lessons ----

// ListLessons returns lesson summaries, newest first.
func (h *Handler) ListLessons(c *gin.Context) {
	lessons, err := h.Lessons.List(c.Request.Context())
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Success(c, lessons)
}

// CreateLesson stores a new lesson.
func (h *Handler) CreateLesson(c *gin.Context) {
	var req services.CreateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}
	lesson, err := h.Lessons.Create(c.Request.Context(), req)
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Created(c, lesson, "lesson created")
}

// GetLesson returns one lesson.
func (h *Handler) GetLesson(c *gin.Context) {
	lesson, err := h.Lessons.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Success(c, lesson)
}

// UpdateLesson applies a partial update.
func (h *Handler) UpdateLesson(c *gin.Context) {
	var patch models.LessonPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}
	lesson, err := h.Lessons.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Success(c, lesson, "lesson updated")
}

// DeleteLesson removes a lesson and its files.
func (h *Handler) DeleteLesson(c *gin.Context) {
	if err := h.Lessons.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Success(c, nil, "lesson deleted")
}

// ListLessonJobs returns the lesson's transcription and OCR jobs.
func (h *Handler) ListLessonJobs(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Lessons.Get(c.Request.Context(), id); err != nil {
		h.Response.Fail(c, err)
		return
	}
	jobs, err := h.Jobs.ListByLesson(c.Request.Context(), id)
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Success(c, jobs)
}

// ---- alignment ----

// AlignLesson runs alignment for a stored lesson. The body is optional.
func (h *Handler) AlignLesson(c *gin.Context) {
	var req services.AlignRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}
	result, err := h.Alignment.AlignLesson(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Success(c, result, "alignment complete")
}

// GetAlignment returns the stored alignment.
func (h *Handler) GetAlignment(c *gin.Context) {
	result, err := h.Alignment.GetAlignment(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Success(c, result)
}

// AlignText aligns a submitted transcript without storing anything.
func (h *Handler) AlignText(c *gin.Context) {
	var req services.AlignTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}
	result, err := h.Alignment.AlignText(c.Request.Context(), req)
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Success(c, result, "alignment complete")
}

// ---- study artifacts ----

// GenerateArtifact generates and stores one artifact kind.
func (h *Handler) GenerateArtifact(c *gin.Context) {
	kind, ok := h.artifactKind(c)
	if !ok {
		return
	}
	body, err := h.Study.Generate(c.Request.Context(), c.Param("id"), kind)
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Success(c, body, string(kind)+" generated")
}

// GetArtifact returns a stored artifact.
func (h *Handler) GetArtifact(c *gin.Context) {
	kind, ok := h.artifactKind(c)
	if !ok {
		return
	}
	body, err := h.Study.Get(c.Request.Context(), c.Param("id"), kind)
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Success(c, body)
}

func (h *Handler) artifactKind(c *gin.Context) (models.ArtifactKind, bool) {
	kind := models.ArtifactKind(strings.ReplaceAll(c.Param("kind"), "-", "_"))
	if !kind.Valid() {
		h.Response.Error(c, http.StatusBadRequest, ErrorArtifactKindInvalid, "unknown artifact kind", c.Param("kind"))
		return "", false
	}
	return kind, true
}

// ---- deviation ----

// AnalyzeDeviation compares the lesson's transcript with its slides.
func (h *Handler) AnalyzeDeviation(c *gin.Context) {
	report, err := h.Deviation.AnalyzeLesson(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Success(c, report)
}

// ---- uploads ----

// UploadMedia stores a recording and queues its transcription.
func (h *Handler) UploadMedia(c *gin.Context) {
	path, ok := h.receiveUpload(c, mediaExtensions)
	if !ok {
		return
	}
	job, err := h.Ingest.StartTranscription(c.Request.Context(), c.Param("id"), path)
	if err != nil {
		removeUpload(path)
		h.Response.Fail(c, err)
		return
	}
	h.Response.Accepted(c, job, "transcription queued")
}

// UploadSlides stores a slide deck and queues text extraction.
func (h *Handler) UploadSlides(c *gin.Context) {
	path, ok := h.receiveUpload(c, slideExtensions)
	if !ok {
		return
	}
	job, err := h.Ingest.StartOCR(c.Request.Context(), c.Param("id"), path)
	if err != nil {
		removeUpload(path)
		h.Response.Fail(c, err)
		return
	}
	h.Response.Accepted(c, job, "slide extraction queued")
}

func (h *Handler) receiveUpload(c *gin.Context, allowed map[string]bool) (string, bool) {
	// Leave room for the multipart framing around the file itself.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Response.Error(c, http.StatusRequestEntityTooLarge, ErrorFileTooLarge, "upload exceeds size limit")
			return "", false
		}
		h.Response.Error(c, http.StatusBadRequest, ErrorFileMissing, "multipart field \"file\" is required", err.Error())
		return "", false
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowed[ext] {
		h.Response.Error(c, http.StatusBadRequest, ErrorFileInvalid, "unsupported file type", ext)
		return "", false
	}

	file, err := header.Open()
	if err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorFileInvalid, "could not read upload", err.Error())
		return "", false
	}
	defer file.Close()

	path, err := h.Lessons.SaveUpload(c.Request.Context(), c.Param("id"), header.Filename, file, h.maxUpload)
	if err != nil {
		h.Response.Fail(c, err)
		return "", false
	}
	return path, true
}

// ---- jobs ----

// GetJob returns a job snapshot.
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.Jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Success(c, job)
}

// CancelJob stops a queued or running job.
func (h *Handler) CancelJob(c *gin.Context) {
	job, err := h.Jobs.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Success(c, job, "cancellation requested")
}

// JobEvents streams job updates as server-sent events.
func (h *Handler) JobEvents(c *gin.Context) {
	updates, unsubscribe, err := h.Jobs.Subscribe(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	defer unsubscribe()
	streamJobEvents(c, updates)
}

// JobWebSocket streams job updates over a websocket.
func (h *Handler) JobWebSocket(c *gin.Context) {
	h.ws.Serve(c, h.Response)
}

// ---- llm ----

// GetLLMStatus reports the active provider.
func (h *Handler) GetLLMStatus(c *gin.Context) {
	h.Response.Success(c, h.LLM.Status())
}

// GetLLMModels lists models of the active provider. With ?refresh=true the
// list is fetched from the vendor first.
func (h *Handler) GetLLMModels(c *gin.Context) {
	refresh, _ := strconv.ParseBool(c.Query("refresh"))
	list, err := h.LLM.ListModels(c.Request.Context(), refresh)
	if err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Success(c, gin.H{
		"provider": h.LLM.GetProviderName(),
		"default":  h.LLM.GetDefaultModel(),
		"models":   list,
	})
}

// UpdateLLMConfig switches provider or credentials and persists them.
func (h *Handler) UpdateLLMConfig(c *gin.Context) {
	var req struct {
		Provider string            `json:"provider" binding:"required"`
		Config   map[string]string `json:"config"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "invalid request body", err.Error())
		return
	}
	if req.Config == nil {
		req.Config = map[string]string{}
	}
	if err := h.LLM.UpdateProvider(req.Provider, req.Config); err != nil {
		h.Response.Fail(c, err)
		return
	}
	h.Response.Success(c, h.LLM.Status(), "llm configuration updated")
}

// bindOptionalJSON binds a JSON body when one was sent.
func bindOptionalJSON(c *gin.Context, v interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func removeUpload(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		utils.GetLogger().Warn("failed to remove upload", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
	}
}
