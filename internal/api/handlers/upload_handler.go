package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"nestlist/internal/apperr"
	"nestlist/internal/logger"
	"nestlist/internal/storage"
	"nestlist/internal/tasks"
)

// UploadHandler issues pre-signed S3 PUT URLs for listing images.
type UploadHandler struct {
	storageService storage.IS3Storage
	taskClient     IAsynqClient
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(storageService storage.IS3Storage, taskClient IAsynqClient) *UploadHandler {
	return &UploadHandler{
		storageService: storageService,
		taskClient:     taskClient,
	}
}

type uploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

// UploadImage handles POST /api/listing/upload. The client PUTs the file to
// the returned URL; a delayed normalization task then resizes oversized
// uploads in place.
func (h *UploadHandler) UploadImage(c *gin.Context) {
	subject, err := currentUserID(c)
	if err != nil {
		fail(c, err)
		return
	}

	var in uploadRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Validation("Invalid request body"))
		return
	}
	if in.Filename == "" {
		fail(c, apperr.Validation("Filename is required"))
		return
	}
	if !strings.HasPrefix(in.ContentType, "image/") {
		fail(c, apperr.Validation("Only image uploads are allowed"))
		return
	}

	url, key, err := h.storageService.GeneratePresignedPutURL(c.Request.Context(), subject.Hex(), in.Filename, in.ContentType)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}

	// Delay gives the client time to complete the PUT before the worker
	// fetches the object.
	task, err := tasks.NewImageProcessTask(key)
	if err != nil {
		logger.L().Error("failed to build image process task", zap.Error(err))
	} else if _, err := h.taskClient.Enqueue(task, asynq.ProcessIn(time.Minute)); err != nil {
		logger.L().Error("failed to enqueue image process task", zap.String("key", key), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"url":       url,
		"key":       key,
		"publicUrl": h.storageService.PublicURL(key),
	})
}
