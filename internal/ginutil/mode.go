package ginutil

import (
	"os"

	"github.com/gin-gonic/gin"
)

// SetMode from the GIN_MODE environment variable. Unlike the init function
// in gin, an empty environment variable means ReleaseMode, so debug logging
// is opt-in.
func SetMode() {
	mode := os.Getenv(gin.EnvGinMode)
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
}
