package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Luigii1506/ohara-catalog/internal/store"
)

// MissingHandler serves the review queue: unmatched set and card candidates
// awaiting human approval.
type MissingHandler struct {
	store store.EventStore
}

func NewMissingHandler(st store.EventStore) *MissingHandler {
	return &MissingHandler{store: st}
}

func (h *MissingHandler) ListMissingSets(c *gin.Context) {
	sets, err := h.store.ListMissingSets(c.Request.Context(), c.Query("event_id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"missing_sets": sets})
}

func (h *MissingHandler) ListMissingCards(c *gin.Context) {
	cards, err := h.store.ListMissingCards(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"missing_cards": cards})
}

type updateMissingSetRequest struct {
	Title string `json:"title" binding:"required"`
}

// UpdateMissingSet corrects a candidate's title.
func (h *MissingHandler) UpdateMissingSet(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid missing set id"})
		return
	}
	var req updateMissingSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	err = h.store.UpdateMissingSetTitle(c.Request.Context(), id, req.Title)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "missing set not found"})
	case errors.Is(err, store.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"updated": true})
	}
}

type resolveMissingSetRequest struct {
	EventID string `json:"event_id" binding:"required"`
	SetID   string `json:"set_id" binding:"required"`
}

// ResolveMissingSet links the event to a real set and consumes the candidate.
func (h *MissingHandler) ResolveMissingSet(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid missing set id"})
		return
	}
	var req resolveMissingSetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "event_id and set_id are required"})
		return
	}

	if err := h.store.ResolveMissingSet(c.Request.Context(), req.EventID, id, req.SetID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": true})
}

type approveMissingCardRequest struct {
	CardID string `json:"card_id" binding:"required"`
}

// ApproveMissingCard binds the candidate to a real card and consumes it.
func (h *MissingHandler) ApproveMissingCard(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid missing card id"})
		return
	}
	var req approveMissingCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "card_id is required"})
		return
	}

	approval, err := h.store.ApproveMissingCard(c.Request.Context(), id, req.CardID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "missing card not found"})
	case errors.Is(err, store.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, approval)
	}
}

// RejectMissingCard deletes the candidate and its event links.
func (h *MissingHandler) RejectMissingCard(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid missing card id"})
		return
	}
	err = h.store.RejectMissingCard(c.Request.Context(), id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "missing card not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"rejected": true})
	}
}

// CleanupOrphans removes candidates whose events are gone.
func (h *MissingHandler) CleanupOrphans(c *gin.Context) {
	removed, err := h.store.CleanupOrphanCandidates(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func parseUintParam(c *gin.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}
