package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/skillsenselab/transcriber/internal/apperrors"
)

// RespondWithError inspects err: if it is (or wraps) an *apperrors.AppError
// the status and body are derived from it; otherwise a generic 500 is sent.
// This is the single place pipeline failures become user-visible responses.
func RespondWithError(c *gin.Context, err error) {
	if appErr, ok := apperrors.AsAppError(err); ok {
		c.JSON(appErr.HTTPStatus, appErr.ToResponse())
		return
	}
	c.JSON(http.StatusInternalServerError, apperrors.Internal(err).ToResponse())
}
