package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/betternotes/internal/document"
	"github.com/MarcoPoloResearchLab/betternotes/internal/notes"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	previewLength     = 80
	heartbeatInterval = 25 * time.Second
)

var (
	errMissingController = errors.New("notes controller dependency required")
	errMissingRealtime   = errors.New("realtime dispatcher dependency required")
)

type Dependencies struct {
	Controller     *notes.Controller
	Realtime       *RealtimeDispatcher
	Logger         *zap.Logger
	AllowedOrigins []string
	Clock          func() time.Time
}

// NewHTTPHandler exposes the note lifecycle to the presentation layer.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Controller == nil {
		return nil, errMissingController
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		controller: deps.Controller,
		realtime:   deps.Realtime,
		logger:     logger,
		clock:      clock,
	}

	router.GET("/notes", handler.handleListNotes)
	router.POST("/notes", handler.handleCreateNote)
	router.GET("/notes/active", handler.handleActiveNote)
	router.GET("/notes/events", handler.handleEvents)
	router.GET("/notes/:id", handler.handleGetNote)
	router.POST("/notes/:id/select", handler.handleSelectNote)
	router.PUT("/notes/:id/title", handler.handleUpdateTitle)
	router.PUT("/notes/:id/content", handler.handleUpdateContent)
	router.DELETE("/notes/:id", handler.handleDeleteNote)

	return router, nil
}

type httpHandler struct {
	controller *notes.Controller
	realtime   *RealtimeDispatcher
	logger     *zap.Logger
	clock      func() time.Time
}

type notePayload struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	Document  document.Document `json:"document"`
	Preview   string            `json:"preview"`
	CreatedAt string            `json:"createdAt"`
	UpdatedAt string            `json:"updatedAt"`
}

type listResponsePayload struct {
	Notes    []notePayload `json:"notes"`
	ActiveID string        `json:"active_id"`
}

type updateTitleRequestPayload struct {
	Title *string `json:"title"`
}

type updateContentRequestPayload struct {
	Document json.RawMessage `json:"document"`
}

type deleteResponsePayload struct {
	Deleted  bool   `json:"deleted"`
	ActiveID string `json:"active_id"`
}

type selectResponsePayload struct {
	ActiveID string `json:"active_id"`
}

type realtimeEventPayload struct {
	NoteIDs   []string `json:"note_ids"`
	ActiveID  string   `json:"active_id"`
	Timestamp int64    `json:"timestamp_ms"`
	Source    string   `json:"source"`
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	stored := h.controller.Notes()
	response := listResponsePayload{
		Notes:    make([]notePayload, 0, len(stored)),
		ActiveID: h.controller.Store().ActiveID(),
	}
	for _, note := range stored {
		response.Notes = append(response.Notes, toNotePayload(note))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	created, err := h.controller.CreateNote(c.Request.Context())
	if err != nil {
		h.respondError(c, "failed to create note", err)
		return
	}
	h.publishNoteChange(created.ID)
	h.publishActiveChange()
	c.JSON(http.StatusCreated, toNotePayload(created))
}

func (h *httpHandler) handleActiveNote(c *gin.Context) {
	active, ok := h.controller.ActiveNote()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no_active_note"})
		return
	}
	c.JSON(http.StatusOK, toNotePayload(active))
}

func (h *httpHandler) handleGetNote(c *gin.Context) {
	note, ok := h.controller.Store().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "note_not_found"})
		return
	}
	c.JSON(http.StatusOK, toNotePayload(note))
}

func (h *httpHandler) handleSelectNote(c *gin.Context) {
	h.controller.SelectNote(c.Param("id"))
	h.publishActiveChange()
	c.JSON(http.StatusOK, selectResponsePayload{ActiveID: h.controller.Store().ActiveID()})
}

func (h *httpHandler) handleUpdateTitle(c *gin.Context) {
	var request updateTitleRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Title == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	updated, err := h.controller.UpdateTitle(c.Request.Context(), c.Param("id"), *request.Title)
	if err != nil {
		h.respondError(c, "failed to update note title", err)
		return
	}
	h.publishNoteChange(updated.ID)
	c.JSON(http.StatusOK, toNotePayload(updated))
}

func (h *httpHandler) handleUpdateContent(c *gin.Context) {
	var request updateContentRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Document) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	doc := document.Deserialize(string(request.Document))
	updated, err := h.controller.UpdateContent(c.Request.Context(), c.Param("id"), doc)
	if err != nil {
		h.respondError(c, "failed to update note content", err)
		return
	}
	h.publishNoteChange(updated.ID)
	c.JSON(http.StatusOK, toNotePayload(updated))
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	noteID := c.Param("id")
	_, deleted := h.controller.DeleteNote(c.Request.Context(), noteID)
	h.publishNoteChange(noteID)
	h.publishActiveChange()
	c.JSON(http.StatusOK, deleteResponsePayload{
		Deleted:  deleted,
		ActiveID: h.controller.Store().ActiveID(),
	})
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	stream, cleanup := h.realtime.Subscribe(c.Request.Context())
	defer cleanup()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Content-Type", "text/event-stream")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				NoteIDs:   message.NoteIDs,
				ActiveID:  message.ActiveID,
				Timestamp: message.Timestamp.UnixMilli(),
				Source:    realtimeSourceBackend,
			})
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, realtimeEventPayload{
				Timestamp: tick.UTC().UnixMilli(),
				Source:    realtimeSourceBackend,
			})
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (h *httpHandler) publishNoteChange(noteID string) {
	h.realtime.Publish(RealtimeMessage{
		EventType: RealtimeEventNoteChanged,
		NoteIDs:   []string{noteID},
		ActiveID:  h.controller.Store().ActiveID(),
		Timestamp: h.clock().UTC(),
	})
}

func (h *httpHandler) publishActiveChange() {
	h.realtime.Publish(RealtimeMessage{
		EventType: RealtimeEventActiveChanged,
		ActiveID:  h.controller.Store().ActiveID(),
		Timestamp: h.clock().UTC(),
	})
}

func (h *httpHandler) respondError(c *gin.Context, message string, err error) {
	var serviceErr *notes.ServiceError
	code := ""
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}

	if errors.Is(err, notes.ErrNoteNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "note_not_found", "code": code})
		return
	}

	h.logger.Error(message, zap.Error(err))
	payload := gin.H{"error": "internal_error"}
	if code != "" {
		payload["code"] = code
	}
	c.JSON(http.StatusInternalServerError, payload)
}

func toNotePayload(note notes.Note) notePayload {
	doc := note.Document()
	return notePayload{
		ID:        note.ID,
		Title:     note.Title,
		Content:   note.Content,
		Document:  doc,
		Preview:   document.Preview(doc, previewLength),
		CreatedAt: notes.FormatTimestamp(note.CreatedAt),
		UpdatedAt: notes.FormatTimestamp(note.UpdatedAt),
	}
}
