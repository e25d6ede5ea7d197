package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/scripta/app/archive"
	"github.com/lysyi3m/scripta/app/story"
	"github.com/lysyi3m/scripta/app/tasks"
)

const (
	defaultArchiveLimit = 30
	maxArchiveLimit     = 100
	feedItems           = 20
)

func NewHandler(cfg HandlerConfig) *Handler {
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	return &Handler{
		store:     cfg.Store,
		submitter: cfg.Submitter,
		validator: cfg.Validator,
		auth:      cfg.Auth,
		generator: cfg.Generator,
		scheduler: cfg.Scheduler,
		loc:       loc,
		now:       time.Now,
	}
}

func (h *Handler) today() string {
	return story.DateOf(h.now(), h.loc)
}

func (h *Handler) GetHealth(c *gin.Context) {
	today := h.today()
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": h.now().In(h.loc).Format(time.RFC3339),
		"today":     today,
	}

	if s, err := h.store.GetStory(c.Request.Context(), today); err != nil {
		health["status"] = "degraded"
		slog.Error("Database error", "operation", "get_story", "date", today, "error", err)
	} else if s != nil {
		health["story_status"] = s.Status
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetToday(c *gin.Context) {
	h.writeStory(c, h.today())
}

func (h *Handler) GetStory(c *gin.Context) {
	date := c.Param("date")
	if !story.ValidDate(date) {
		writeFailure(c, http.StatusBadRequest, story.KindInvalidArgument, "Data non valida.")
		return
	}
	h.writeStory(c, date)
}

func (h *Handler) writeStory(c *gin.Context, date string) {
	ctx := c.Request.Context()

	s, err := h.store.GetStory(ctx, date)
	if err != nil {
		slog.Error("Database error", "operation", "get_story", "date", date, "error", err)
		writeFailure(c, http.StatusInternalServerError, story.KindInternal, "Errore del database.")
		return
	}
	if s == nil {
		writeFailure(c, http.StatusNotFound, story.KindFailedPrecondition, "Nessuna storia per questa data.")
		return
	}

	contributions, err := h.store.ListContributions(ctx, date)
	if err != nil {
		slog.Error("Database error", "operation", "list_contributions", "date", date, "error", err)
		writeFailure(c, http.StatusInternalServerError, story.KindInternal, "Errore del database.")
		return
	}

	items := make([]contributionResponse, 0, len(contributions))
	for _, contribution := range contributions {
		items = append(items, toContributionResponse(contribution))
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"story":         toStoryResponse(s, contributions),
		"contributions": items,
	})
}

func (h *Handler) GetArchive(c *gin.Context) {
	limit := defaultArchiveLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeFailure(c, http.StatusBadRequest, story.KindInvalidArgument, "Parametro limit non valido.")
			return
		}
		limit = min(n, maxArchiveLimit)
	}

	stories, err := h.store.ListStories(c.Request.Context(), story.StatusClosed, limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_stories", "error", err)
		writeFailure(c, http.StatusInternalServerError, story.KindInternal, "Errore del database.")
		return
	}

	items := make([]storyResponse, 0, len(stories))
	for i := range stories {
		items = append(items, toStoryResponse(&stories[i], nil))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stories": items,
		"total":   len(items),
	})
}

func (h *Handler) GetArchiveFeed(c *gin.Context) {
	ctx := c.Request.Context()

	stories, err := h.store.ListStories(ctx, story.StatusClosed, feedItems)
	if err != nil {
		slog.Error("Database error", "operation", "list_stories", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	entries := make([]archive.Entry, 0, len(stories))
	for _, s := range stories {
		contributions, err := h.store.ListContributions(ctx, s.Date)
		if err != nil {
			slog.Error("Database error", "operation", "list_contributions", "date", s.Date, "error", err)
			c.Status(http.StatusInternalServerError)
			return
		}
		entries = append(entries, archive.Entry{Story: s, Contributions: contributions})
	}

	rss, err := h.generator.Run(entries)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/rss+xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(entries)))
	c.String(http.StatusOK, rss)
}

// Submit runs a contribution through the pipeline on behalf of the caller
// identified by the Authorization bearer token.
func (h *Handler) Submit(c *gin.Context) {
	ctx := c.Request.Context()

	var req contributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeFailure(c, http.StatusBadRequest, story.KindInvalidArgument, "Richiesta non valida.")
		return
	}

	// Without an authenticator every caller is anonymous and the pipeline rejects it.
	var identity *story.Identity
	if token := bearerToken(c); token != "" && h.auth != nil {
		id, err := h.auth.Verify(ctx, token)
		if err != nil {
			slog.Warn("Token verification failed", "client_ip", c.ClientIP(), "error", err)
			writeFailure(c, http.StatusUnauthorized, story.KindUnauthenticated, "Sessione non valida, effettua di nuovo l'accesso.")
			return
		}
		identity = id
	}

	contribution, err := h.submitter.Submit(ctx, h.today(), identity, req.Text)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"contribution": toContributionResponse(*contribution),
	})
}

// Validate is advisory: it runs the same structural rules as submission.
func (h *Handler) Validate(c *gin.Context) {
	var req contributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeFailure(c, http.StatusBadRequest, story.KindInvalidArgument, "Richiesta non valida.")
		return
	}

	response := gin.H{
		"success":    true,
		"valid":      true,
		"word_count": story.CountWords(req.Text),
		"max_words":  story.MaxWords,
	}

	if err := h.validator.Validate(req.Text); err != nil {
		response["valid"] = false
		response["reason"] = err.Error()

		var rejection *story.Rejection
		if errors.As(err, &rejection) {
			response["rule"] = rejection.Rule
		}
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) APIDeleteContribution(c *gin.Context) {
	date := c.Param("date")
	id := c.Param("id")
	if !story.ValidDate(date) || id == "" {
		writeFailure(c, http.StatusBadRequest, story.KindInvalidArgument, "Parametri non validi.")
		return
	}

	deleted, err := h.store.DeleteContribution(c.Request.Context(), date, id)
	if err != nil {
		slog.Error("Database error", "operation", "delete_contribution", "date", date, "id", id, "error", err)
		writeFailure(c, http.StatusInternalServerError, story.KindInternal, "Errore del database.")
		return
	}
	if !deleted {
		writeFailure(c, http.StatusNotFound, story.KindFailedPrecondition, "Contributo non trovato.")
		return
	}

	slog.Info("Contribution deleted", "date", date, "id", id)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) APITriggerTask(c *gin.Context) {
	taskType := tasks.TaskType(c.Param("type"))
	date := c.DefaultQuery("date", h.today())

	err := h.scheduler.Trigger(taskType, date)
	switch {
	case err == nil:
	case errors.Is(err, tasks.ErrUnknownTaskType), errors.Is(err, story.ErrInvalidDate):
		writeFailure(c, http.StatusBadRequest, story.KindInvalidArgument, err.Error())
		return
	case errors.Is(err, tasks.ErrTaskPending):
		writeFailure(c, http.StatusConflict, story.KindFailedPrecondition, err.Error())
		return
	default:
		slog.Error("Error enqueueing task", "type", string(taskType), "date", date, "error", err)
		writeFailure(c, http.StatusServiceUnavailable, story.KindInternal, err.Error())
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Task enqueued",
		"task": gin.H{
			"type": taskType,
			"date": date,
		},
	})
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func statusOf(kind story.Kind) int {
	switch kind {
	case story.KindUnauthenticated:
		return http.StatusUnauthorized
	case story.KindInvalidArgument:
		return http.StatusBadRequest
	case story.KindPermissionDenied:
		return http.StatusForbidden
	case story.KindFailedPrecondition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a submission error. Internal causes are logged, never sent.
func writeError(c *gin.Context, err error) {
	kind := story.KindOf(err)
	message := "Errore interno."

	var e *story.Error
	if errors.As(err, &e) {
		message = e.Message
	}
	if kind == story.KindInternal {
		slog.Error("Contribution failed", "client_ip", c.ClientIP(), "error", err)
	}

	writeFailure(c, statusOf(kind), kind, message)
}

func writeFailure(c *gin.Context, status int, kind story.Kind, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"kind":    kind,
			"message": message,
		},
	})
}
