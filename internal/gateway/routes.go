package gateway

import (
	"github.com/gin-gonic/gin"
)

const (
	routeModels          = "/v1/models"
	routeChatCompletions = "/v1/chat/completions"
	routeUnmatched       = "unmatched"
)

func (s *Server) setupRoutes() {
	gin.SetMode(s.config.Server.GinMode)
	s.router = gin.New()

	// Unknown paths and methods must all end in the plain 404 below.
	s.router.RedirectTrailingSlash = false
	s.router.RedirectFixedPath = false
	s.router.HandleMethodNotAllowed = false

	s.router.Use(gin.CustomRecovery(s.recoverPanic))
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.accessLogMiddleware())
	s.router.Use(s.corsMiddleware())
	s.router.Use(s.maxBodySizeMiddleware())

	s.router.GET(routeModels, s.listModels)
	s.router.POST(routeChatCompletions, s.chatCompletions)
	s.router.NoRoute(s.notFound)
}
