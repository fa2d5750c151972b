package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"nestlist/internal/apperr"
	"nestlist/internal/logger"
	"nestlist/internal/services"
	"nestlist/internal/tasks"
	"nestlist/internal/validation"
)

// ListingHandler handles listing CRUD and search.
type ListingHandler struct {
	listingService services.IListingService
	taskClient     IAsynqClient
}

// NewListingHandler creates a new ListingHandler.
func NewListingHandler(listingService services.IListingService, taskClient IAsynqClient) *ListingHandler {
	return &ListingHandler{
		listingService: listingService,
		taskClient:     taskClient,
	}
}

// sortFields maps query-string sort names onto BSON fields. Anything else
// falls back to creation time.
var sortFields = map[string]string{
	"regularPrice": "regular_price",
	"createdAt":    "created_at",
}

// CreateListing handles POST /api/listing/create. The owner reference is
// taken from the verified credential, never from the payload.
func (h *ListingHandler) CreateListing(c *gin.Context) {
	subject, err := currentUserID(c)
	if err != nil {
		fail(c, err)
		return
	}

	var in validation.ListingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Validation("Invalid request body"))
		return
	}
	if err := validation.ValidateListing(&in); err != nil {
		fail(c, err)
		return
	}

	listing, err := h.listingService.CreateListing(c.Request.Context(), subject, &in)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}

	c.JSON(http.StatusCreated, listing)
}

// UpdateListing handles POST /api/listing/update/:id.
func (h *ListingHandler) UpdateListing(c *gin.Context) {
	listingID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		fail(c, apperr.Validation("Invalid listing ID"))
		return
	}

	subject, err := currentUserID(c)
	if err != nil {
		fail(c, err)
		return
	}

	var in validation.ListingInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Validation("Invalid request body"))
		return
	}
	if err := validation.ValidateListing(&in); err != nil {
		fail(c, err)
		return
	}

	listing, err := h.listingService.UpdateListing(c.Request.Context(), listingID, subject, &in)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			fail(c, apperr.NotFound("Listing not found!"))
		case errors.Is(err, services.ErrNotOwner):
			fail(c, apperr.Forbidden("You can only update your own listings!"))
		default:
			fail(c, apperr.Internal(err))
		}
		return
	}

	c.JSON(http.StatusOK, listing)
}

// DeleteListing handles DELETE /api/listing/delete/:id.
func (h *ListingHandler) DeleteListing(c *gin.Context) {
	listingID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		fail(c, apperr.Validation("Invalid listing ID"))
		return
	}

	subject, err := currentUserID(c)
	if err != nil {
		fail(c, err)
		return
	}

	deleted, err := h.listingService.DeleteListing(c.Request.Context(), listingID, subject)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			fail(c, apperr.NotFound("Listing not found!"))
		case errors.Is(err, services.ErrNotOwner):
			fail(c, apperr.Forbidden("You can only delete your own listings!"))
		default:
			fail(c, apperr.Internal(err))
		}
		return
	}

	h.enqueueImageCleanup(deleted.ImageURLs)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AdminDeleteListing handles DELETE /api/listing/admindelete/:id. Behind
// AuthMiddleware + AdminMiddleware; no ownership guard by design.
func (h *ListingHandler) AdminDeleteListing(c *gin.Context) {
	listingID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		fail(c, apperr.Validation("Invalid listing ID"))
		return
	}

	deleted, err := h.listingService.AdminDeleteListing(c.Request.Context(), listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			fail(c, apperr.NotFound("Listing not found!"))
		} else {
			fail(c, apperr.Internal(err))
		}
		return
	}

	h.enqueueImageCleanup(deleted.ImageURLs)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetListing handles GET /api/listing/get/:id.
func (h *ListingHandler) GetListing(c *gin.Context) {
	listingID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		fail(c, apperr.Validation("Invalid listing ID"))
		return
	}

	listing, err := h.listingService.FindListingByID(c.Request.Context(), listingID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			fail(c, apperr.NotFound("Listing not found!"))
		} else {
			fail(c, apperr.Internal(err))
		}
		return
	}

	c.JSON(http.StatusOK, listing)
}

// GetListings handles GET /api/listing/get with search filters.
func (h *ListingHandler) GetListings(c *gin.Context) {
	params := &services.SearchParams{
		SearchTerm: c.Query("searchTerm"),
		Type:       c.DefaultQuery("type", "all"),
		Offer:      parseBoolFilter(c.Query("offer")),
		Furnished:  parseBoolFilter(c.Query("furnished")),
		Parking:    parseBoolFilter(c.Query("parking")),
		Order:      c.DefaultQuery("order", "desc"),
	}

	if field, ok := sortFields[c.Query("sort")]; ok {
		params.Sort = field
	}

	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
		params.Limit = limit
	}
	if startIndex, err := strconv.Atoi(c.Query("startIndex")); err == nil && startIndex > 0 {
		params.StartIndex = startIndex
	}

	listings, err := h.listingService.SearchListings(c.Request.Context(), params)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}

	c.JSON(http.StatusOK, listings)
}

// GetAllListings handles GET /api/listing/getall, the moderation view.
func (h *ListingHandler) GetAllListings(c *gin.Context) {
	listings, err := h.listingService.FindAllListings(c.Request.Context())
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}
	c.JSON(http.StatusOK, listings)
}

// parseBoolFilter interprets a query flag the way the search UI sends it:
// only an explicit "true" narrows the result set, anything else matches
// both values.
func parseBoolFilter(value string) *bool {
	if value == "true" {
		t := true
		return &t
	}
	return nil
}

func (h *ListingHandler) enqueueImageCleanup(imageURLs []string) {
	if len(imageURLs) == 0 {
		return
	}
	task, err := tasks.NewImageCleanupTask(imageURLs)
	if err != nil {
		logger.L().Error("failed to build image cleanup task", zap.Error(err))
		return
	}
	if _, err := h.taskClient.Enqueue(task); err != nil {
		logger.L().Error("failed to enqueue image cleanup task", zap.Error(err))
	}
}
