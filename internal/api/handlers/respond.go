package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"nestlist/internal/api/middleware"
	"nestlist/internal/apperr"
	"nestlist/internal/logger"
)

// IAsynqClient is the slice of *asynq.Client the handlers use, extracted for
// mocking in tests.
type IAsynqClient interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// fail writes the uniform failure body {"success":false,"message":...} with
// the status mapped from the error taxonomy. Internal causes are logged, not
// leaked.
func fail(c *gin.Context, err error) {
	appErr := apperr.From(err)
	if appErr.Kind == apperr.KindInternal {
		logger.L().Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(appErr))
	}
	c.AbortWithStatusJSON(appErr.Status(), gin.H{"success": false, "message": appErr.Message})
}

// currentUserID returns the authenticated subject set by AuthMiddleware.
func currentUserID(c *gin.Context) (primitive.ObjectID, error) {
	idHex := c.GetString(middleware.ContextKeyUserID)
	userID, err := primitive.ObjectIDFromHex(idHex)
	if err != nil {
		return primitive.NilObjectID, apperr.Unauthorized("Unauthorized")
	}
	return userID, nil
}
