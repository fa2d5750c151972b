package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"nestlist/internal/api/middleware"
	"nestlist/internal/apperr"
	"nestlist/internal/auth"
	"nestlist/internal/logger"
	"nestlist/internal/services"
	"nestlist/internal/tasks"
	"nestlist/internal/validation"
)

// UserHandler handles profile reads, updates and account deletion.
type UserHandler struct {
	userService    services.IUserService
	listingService services.IListingService
	taskClient     IAsynqClient
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userService services.IUserService, listingService services.IListingService, taskClient IAsynqClient) *UserHandler {
	return &UserHandler{
		userService:    userService,
		listingService: listingService,
		taskClient:     taskClient,
	}
}

// GetUser handles GET /api/user/:id.
func (h *UserHandler) GetUser(c *gin.Context) {
	userID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		fail(c, apperr.Validation("Invalid user ID"))
		return
	}

	user, err := h.userService.FindByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			fail(c, apperr.NotFound("User not found!"))
		} else {
			fail(c, apperr.Internal(err))
		}
		return
	}

	c.JSON(http.StatusOK, user)
}

// GetUserListings handles GET /api/user/listings/:id. Only the owner may
// list their own listings through this route.
func (h *UserHandler) GetUserListings(c *gin.Context) {
	userID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		fail(c, apperr.Validation("Invalid user ID"))
		return
	}

	subject, err := currentUserID(c)
	if err != nil {
		fail(c, err)
		return
	}
	if subject != userID {
		fail(c, apperr.Forbidden("You can only view your own listings!"))
		return
	}

	listings, err := h.listingService.FindListingsByUserID(c.Request.Context(), userID)
	if err != nil {
		fail(c, apperr.Internal(err))
		return
	}

	c.JSON(http.StatusOK, listings)
}

// UpdateUser handles POST /api/user/update/:id.
func (h *UserHandler) UpdateUser(c *gin.Context) {
	userID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		fail(c, apperr.Validation("Invalid user ID"))
		return
	}

	subject, err := currentUserID(c)
	if err != nil {
		fail(c, err)
		return
	}
	if subject != userID {
		fail(c, apperr.Forbidden("You can only update your own account!"))
		return
	}

	var in validation.UserUpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, apperr.Validation("Invalid request body"))
		return
	}
	if err := validation.ValidateUserUpdate(&in); err != nil {
		fail(c, err)
		return
	}

	updates := map[string]interface{}{}
	if in.Username != "" {
		updates["username"] = in.Username
	}
	if in.Email != "" {
		updates["email"] = in.Email
	}
	if in.Avatar != "" {
		updates["avatar"] = in.Avatar
	}
	if in.Password != "" {
		hashed, err := auth.HashPassword(in.Password)
		if err != nil {
			fail(c, apperr.Internal(err))
			return
		}
		updates["password"] = hashed
	}
	if len(updates) == 0 {
		fail(c, apperr.Validation("No fields provided for update"))
		return
	}

	user, err := h.userService.UpdateUser(c.Request.Context(), userID, updates)
	if err != nil {
		switch {
		case errors.Is(err, mongo.ErrNoDocuments):
			fail(c, apperr.NotFound("User not found!"))
		case errors.Is(err, services.ErrUsernameExists):
			fail(c, apperr.Validation("Username is already taken"))
		case errors.Is(err, services.ErrEmailExists):
			fail(c, apperr.Validation("Email is already in use"))
		default:
			fail(c, apperr.Internal(err))
		}
		return
	}

	c.JSON(http.StatusOK, user)
}

// DeleteUser handles DELETE /api/user/delete/:id. Deletion cascades to the
// user's listings and queues storage cleanup for their images.
func (h *UserHandler) DeleteUser(c *gin.Context) {
	userID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		fail(c, apperr.Validation("Invalid user ID"))
		return
	}

	subject, err := currentUserID(c)
	if err != nil {
		fail(c, err)
		return
	}
	if subject != userID {
		fail(c, apperr.Forbidden("You can only delete your own account!"))
		return
	}

	imageURLs, err := h.userService.DeleteUserAndListings(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			fail(c, apperr.NotFound("User not found!"))
		} else {
			fail(c, apperr.Internal(err))
		}
		return
	}

	h.enqueueImageCleanup(imageURLs)
	c.SetCookie(middleware.AccessTokenCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// AdminDeleteUser handles DELETE /api/user/admindelete/:id. The route is
// behind AuthMiddleware + AdminMiddleware; the ownership guard is bypassed
// deliberately.
func (h *UserHandler) AdminDeleteUser(c *gin.Context) {
	userID, err := primitive.ObjectIDFromHex(c.Param("id"))
	if err != nil {
		fail(c, apperr.Validation("Invalid user ID"))
		return
	}

	imageURLs, err := h.userService.DeleteUserAndListings(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			fail(c, apperr.NotFound("User not found!"))
		} else {
			fail(c, apperr.Internal(err))
		}
		return
	}

	h.enqueueImageCleanup(imageURLs)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// enqueueImageCleanup queues deletion of stored images. Failures are logged
// only; the user-facing operation already succeeded.
func (h *UserHandler) enqueueImageCleanup(imageURLs []string) {
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
