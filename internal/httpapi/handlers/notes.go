package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"lingochat/internal/common"
)

type noteReq struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content" binding:"required"`
}

func (h *Handler) CreateNote(c *gin.Context) {
	var req noteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "title and content are required")
		return
	}

	note, err := h.NotesRepo.Create(c.Request.Context(), userID(c), req.Title, req.Content)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50040, "failed to create note")
		return
	}
	common.OK(c, note)
}

func (h *Handler) ListNotes(c *gin.Context) {
	list, err := h.NotesRepo.List(c.Request.Context(), userID(c))
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50041, "failed to load notes")
		return
	}
	common.OK(c, gin.H{"notes": list})
}

func (h *Handler) GetNote(c *gin.Context) {
	note, err := h.NotesRepo.Get(c.Request.Context(), c.Param("id"), userID(c))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		common.Fail(c, http.StatusNotFound, 40404, "note not found")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50042, "failed to load note")
		return
	}
	common.OK(c, note)
}

func (h *Handler) UpdateNote(c *gin.Context) {
	var req noteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "title and content are required")
		return
	}

	note, err := h.NotesRepo.Update(c.Request.Context(), c.Param("id"), userID(c), req.Title, req.Content)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		common.Fail(c, http.StatusNotFound, 40404, "note not found")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50043, "failed to update note")
		return
	}
	common.OK(c, note)
}

func (h *Handler) DeleteNote(c *gin.Context) {
	err := h.NotesRepo.Delete(c.Request.Context(), c.Param("id"), userID(c))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		common.Fail(c, http.StatusNotFound, 40404, "note not found")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50044, "failed to delete note")
		return
	}
	common.OK(c, nil)
}
