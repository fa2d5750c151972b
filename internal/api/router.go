package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"nestlist/internal/api/handlers"
	"nestlist/internal/api/middleware"
	"nestlist/internal/captcha"
	"nestlist/internal/config"
	"nestlist/internal/services"
	"nestlist/internal/storage"
)

// SetupRouter configures and returns the main Gin engine. Dependencies that
// handlers share (services, storage, captcha) are initialized here.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, taskClient handlers.IAsynqClient, s3StorageService storage.IS3Storage) *gin.Engine {
	listingService := services.NewListingService(db, cfg, rdb)
	userService := services.NewUserService(db, listingService)
	captchaVerifier := captcha.NewRecaptchaVerifier(cfg)

	r := gin.New()
	r.Use(gin.Recovery())

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.MetricsMiddleware())
	r.Use(rateLimiter.Limit())

	authHandler := handlers.NewAuthHandler(cfg, userService, captchaVerifier)
	userHandler := handlers.NewUserHandler(userService, listingService, taskClient)
	listingHandler := handlers.NewListingHandler(listingService, taskClient)
	uploadHandler := handlers.NewUploadHandler(s3StorageService, taskClient)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})

	apiGroup := r.Group("/api")
	{
		authGroup := apiGroup.Group("/auth")
		{
			authGroup.POST("/signup", authHandler.Signup)
			authGroup.POST("/signin", authHandler.Signin)
			authGroup.POST("/admin", authHandler.SigninAdmin)
			authGroup.GET("/signout", authHandler.Signout)
		}

		listingGroup := apiGroup.Group("/listing")
		{
			// Public reads
			listingGroup.GET("/get/:id", listingHandler.GetListing)
			listingGroup.GET("/get", listingHandler.GetListings)

			// Authenticated mutations; ownership is enforced in the
			// services via the owner reference.
			authed := listingGroup.Group("/")
			authed.Use(middleware.AuthMiddleware(cfg.JwtSecret))
			{
				authed.POST("/create", listingHandler.CreateListing)
				authed.POST("/update/:id", listingHandler.UpdateListing)
				authed.DELETE("/delete/:id", listingHandler.DeleteListing)
				authed.POST("/upload", uploadHandler.UploadImage)
			}

			// Moderation routes require the server-verified admin claim.
			admin := listingGroup.Group("/")
			admin.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
			{
				admin.GET("/getall", listingHandler.GetAllListings)
				admin.DELETE("/admindelete/:id", listingHandler.AdminDeleteListing)
			}
		}

		userGroup := apiGroup.Group("/user")
		{
			authed := userGroup.Group("/")
			authed.Use(middleware.AuthMiddleware(cfg.JwtSecret))
			{
				authed.GET("/listings/:id", userHandler.GetUserListings)
				authed.POST("/update/:id", userHandler.UpdateUser)
				authed.DELETE("/delete/:id", userHandler.DeleteUser)
				authed.GET("/:id", userHandler.GetUser)
			}

			admin := userGroup.Group("/")
			admin.Use(middleware.AuthMiddleware(cfg.JwtSecret), middleware.AdminMiddleware())
			{
				admin.DELETE("/admindelete/:id", userHandler.AdminDeleteUser)
			}
		}
	}

	return r
}
