package routes

import (
	"collab-editor-api/internal/handlers"
	"collab-editor-api/internal/middleware"
	"collab-editor-api/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// SetupRoutes wires the HTTP API around the injected hub.
func SetupRoutes(hub *realtime.Hub, log zerolog.Logger) *gin.Engine {
	// Create a new GIN Router
	ginRouter := gin.Default()

	// CORS middleware (for frontend integration)
	ginRouter.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check endpoint
	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"message": "Collaborative editor API is running",
		})
	})

	// Public routes (no authentication required)
	api := ginRouter.Group("/api")
	{
		// Login endpoint
		api.POST("/login", handlers.Login)
	}

	// Shared routes: a JWT resolves identity when present, but anonymous
	// participants with an access key are first-class here.
	sharedRoutes := api.Group("")
	sharedRoutes.Use(middleware.OptionalJWTAuthMiddleware())
	{
		sharedRoutes.GET("/documents/:id", handlers.GetDocumentByID)
		sharedRoutes.PUT("/documents/:id/content", handlers.SaveDocumentContent)
		sharedRoutes.GET("/documents/:id/presence", handlers.PresenceHandler(hub))
		sharedRoutes.GET("/realtime/:id", handlers.WebSocketHandler(hub, log))
	}

	// Protected routes (authentication required)
	protectedRoutes := api.Group("")
	protectedRoutes.Use(middleware.JWTAuthMiddleware())
	{
		// Document endpoints
		protectedRoutes.GET("/documents", handlers.GetDocuments)
		protectedRoutes.POST("/documents", handlers.CreateDocument)
		protectedRoutes.PUT("/documents/:id", handlers.RenameDocument)
		protectedRoutes.DELETE("/documents/:id", handlers.DeleteDocument)
		// Users endpoint
		protectedRoutes.GET("/users", handlers.GetAllUsers)
	}

	return ginRouter
}
