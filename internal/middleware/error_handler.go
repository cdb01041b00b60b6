package middleware

import (
	apiError "document-archive/internal/errors"
	"errors"
	"log"

	"github.com/gin-gonic/gin"
)

func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next() // Execute the handler first

		// detect any errors
		if len(c.Errors) > 0 {
			err := c.Errors.Last().Err

			var appErr *apiError.AppError

			// if it's a raw error we didn't wrap, treat as Internal
			if !errors.As(err, &appErr) {
				appErr = apiError.ErrInternalServer(err)
			}

			// LOGGING
			if appErr.Code >= 500 {
				log.Printf("[ERROR] %v\n", err)
			} else {
				log.Printf("[INFO] %s: %v\n", appErr.Message, appErr.Err)
			}

			// Respond with JSON
			c.AbortWithStatusJSON(appErr.Code, gin.H{"error": appErr.Message})
		}
	}
}
