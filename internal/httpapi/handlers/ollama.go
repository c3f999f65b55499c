package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"lingochat/internal/common"
	"lingochat/internal/jobs"
	"lingochat/internal/ollama"
)

type manageModelReq struct {
	Action string `json:"action" binding:"required"`
	Model  string `json:"modelId"`
}

// ManageModel is the model lifecycle entry point: load, unload, switch and
// status all funnel through the serialized manager.
func (h *Handler) ManageModel(c *gin.Context) {
	var req manageModelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "action is required")
		return
	}

	ctx := c.Request.Context()

	switch req.Action {
	case "load":
		if req.Model == "" {
			common.Fail(c, http.StatusBadRequest, 40003, "modelId is required")
			return
		}
		res, err := h.Lifecycle.Load(ctx, req.Model)
		if err != nil {
			common.Fail(c, http.StatusInternalServerError, 50020, err.Error())
			return
		}
		common.OK(c, gin.H{"success": true, "action": "load", "result": res})

	case "unload":
		if req.Model == "" {
			common.Fail(c, http.StatusBadRequest, 40003, "modelId is required")
			return
		}
		res := h.Lifecycle.Unload(ctx, req.Model)
		common.OK(c, gin.H{"success": true, "action": "unload", "result": res})

	case "switch":
		if req.Model == "" {
			common.Fail(c, http.StatusBadRequest, 40003, "modelId is required")
			return
		}
		res, err := h.Lifecycle.Switch(ctx, req.Model)
		if err != nil {
			common.Fail(c, http.StatusInternalServerError, 50021, err.Error())
			return
		}
		common.OK(c, gin.H{"success": true, "action": "switch", "result": res})

	case "status":
		res, err := h.Lifecycle.Status(ctx)
		if err != nil {
			common.Fail(c, http.StatusServiceUnavailable, 50322, err.Error())
			return
		}
		common.OK(c, gin.H{"success": true, "action": "status", "result": res})

	default:
		common.Fail(c, http.StatusBadRequest, 40004, "unknown action")
	}
}

// Models lists installed models. An unreachable server degrades to an empty
// list so the settings page still renders.
func (h *Handler) Models(c *gin.Context) {
	tags, err := h.Ollama.Tags(c.Request.Context())
	if err != nil {
		h.Log.Warn("list models failed", zap.Error(err))
		common.OK(c, gin.H{"success": false, "models": []ollama.TagModel{}})
		return
	}
	common.OK(c, gin.H{"success": true, "models": tags})
}

// Status reports whether the local inference server answers at all.
func (h *Handler) Status(c *gin.Context) {
	common.OK(c, gin.H{"running": h.Ollama.Health(c.Request.Context())})
}

type downloadReq struct {
	Model string `json:"model" binding:"required"`
}

// Download pulls a model and blocks until it is installed.
func (h *Handler) Download(c *gin.Context) {
	var req downloadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "model is required")
		return
	}

	if err := h.Ollama.Pull(c.Request.Context(), req.Model, nil); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50023, err.Error())
		return
	}
	common.OK(c, gin.H{"success": true, "model": req.Model})
}

// DownloadProgress pulls a model and relays progress as server-sent events.
func (h *Handler) DownloadProgress(c *gin.Context) {
	var req downloadReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "model is required")
		return
	}

	sseHeaders(c)

	err := h.Ollama.Pull(c.Request.Context(), req.Model, func(p ollama.PullProgress) {
		writeSSE(c, gin.H{
			"status":   p.Status,
			"progress": p.Percent,
			"message":  fmt.Sprintf("%s 다운로드 중... %d%%", req.Model, p.Percent),
		})
	})
	if err != nil {
		writeSSE(c, gin.H{"error": err.Error()})
		return
	}
	writeSSE(c, gin.H{
		"done":    true,
		"message": fmt.Sprintf("%s 다운로드 완료!", req.Model),
	})
}

type deleteModelReq struct {
	Model string `json:"model" binding:"required"`
}

func (h *Handler) DeleteModel(c *gin.Context) {
	var req deleteModelReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "model is required")
		return
	}

	if err := h.Ollama.Delete(c.Request.Context(), req.Model); err != nil {
		common.Fail(c, http.StatusInternalServerError, 50024, err.Error())
		return
	}
	common.OK(c, gin.H{"success": true, "model": req.Model})
}

type createJobReq struct {
	Model string `json:"model" binding:"required"`
}

// CreateJob enqueues a background model pull. Re-sending the same
// Idempotency-Key returns the earlier job instead of a duplicate.
func (h *Handler) CreateJob(c *gin.Context) {
	var req createJobReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40001, "model is required")
		return
	}

	ctx := c.Request.Context()

	id, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50025, "failed to create job")
		return
	}

	job := &jobs.PullJob{
		ID:     id,
		UserID: userID(c),
		Model:  req.Model,
		Status: jobs.StatusQueued,
	}
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		job.IdempotencyKey = &key
	}

	job, created, err := h.JobsRepo.CreateOrGetExisting(ctx, job)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50025, "failed to create job")
		return
	}

	if created {
		if err := h.Rabbit.PublishJob(ctx, job.ID); err != nil {
			h.Log.Error("publish pull job", zap.String("job_id", job.ID), zap.Error(err))
			_ = h.JobsRepo.MarkFailed(ctx, job.ID, "failed to enqueue")
			common.Fail(c, http.StatusInternalServerError, 50026, "failed to enqueue job")
			return
		}
	}

	common.OK(c, job)
}

// GetJob returns a job's progress. Jobs of other users read as missing.
func (h *Handler) GetJob(c *gin.Context) {
	job, err := h.JobsRepo.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && job.UserID != userID(c)) {
		common.Fail(c, http.StatusNotFound, 40403, "job not found")
		return
	}
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50027, "failed to load job")
		return
	}
	common.OK(c, job)
}
