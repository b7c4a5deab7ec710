package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"page-match/config"
	"page-match/models"
	"page-match/security"
	"page-match/services"
	"page-match/storage"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	recommendationsCounter   prometheus.Counter
	profilesRefreshedCounter prometheus.Counter
)

func init() {
	recommendationsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendations_generated_total",
			Help: "Total number of recommendations generated and stored.",
		},
	)
	profilesRefreshedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "profiles_refreshed_total",
			Help: "Total number of reader profiles re-synthesized by the refresh job.",
		},
	)
	prometheus.MustRegister(recommendationsCounter, profilesRefreshedCounter)
}

// apiKeyAuthMiddleware guards operator endpoints with a shared secret.
func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

// jwtAuthMiddleware resolves the current principal and stores the user id
// in the request context.
func jwtAuthMiddleware(auth *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing bearer token"})
			return
		}
		userID, err := auth.ParseToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

func currentUserID(c *gin.Context) int64 {
	return c.GetInt64("userID")
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Encryption material is validated before anything touches the DB;
	// a blank passphrase or salt aborts startup.
	fieldCipher, err := security.NewFieldCipher(cfg.EncryptionPassphrase, cfg.EncryptionSalt)
	if err != nil {
		logging.Fatal("Field cipher setup failed", zap.Error(err))
	}
	converter := security.NewConverter(fieldCipher, logging)

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	logging.Info("Running database auto-migration...")
	if err := db.AutoMigrate(
		&models.Book{}, &models.User{}, &models.UserProfile{},
		&models.Rating{}, &models.Recommendation{},
	); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	// Setup Services
	llmClient, err := services.NewOpenAIClient(cfg, logging)
	if err != nil {
		logging.Fatal("LLM client creation failed", zap.Error(err))
	}
	s3Client, err := storage.NewS3Client(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}

	summarizer := services.NewHistorySummarizer(logging)
	userService := services.NewUserService(db, logging, converter)
	authService := services.NewAuthService(cfg, logging, userService)
	catalogService := services.NewCatalogService(db, logging)
	profileService := services.NewProfileService(db, logging, llmClient, summarizer)
	recommendationService := services.NewRecommendationService(db, logging, llmClient, catalogService, profileService)
	refreshService := services.NewRefreshService(db, logging, profileService)

	// Setup Router
	router := gin.Default()
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupAuthRoutes(router, authService)
	setupBookRoutes(router, cfg, db, s3Client, logging)
	setupUserRoutes(router, cfg, userService, logging)
	setupRatingRoutes(router, db, authService, logging)
	setupProfileRoutes(router, authService, profileService, logging)
	setupRecommendationRoutes(router, cfg, authService, recommendationService, refreshService, logging)

	// Setup Cron
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.ProfileRefreshSchedule, func() {
		logging.Info("Running scheduled profile refresh...")
		count, err := refreshService.RunForAllUsers(context.Background())
		if err != nil {
			logging.Error("Profile refresh job failed", zap.Error(err))
		} else {
			logging.Info("Profile refresh job completed", zap.Int("profiles_refreshed", count))
			profilesRefreshedCounter.Add(float64(count))
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupAuthRoutes(router *gin.Engine, auth *services.AuthService) {
	rg := router.Group("/auth")

	rg.POST("/register", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Email    string `json:"email"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			return
		}
		user, err := auth.Register(req.Username, req.Email, req.Password)
		if err != nil {
			if errors.Is(err, services.ErrUsernameTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register user"})
			return
		}
		c.JSON(http.StatusCreated, user)
	})

	rg.POST("/login", func(c *gin.Context) {
		var req struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
			return
		}
		token, err := auth.Login(req.Username, req.Password)
		if err != nil {
			if errors.Is(err, services.ErrInvalidCredentials) {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	})
}

func setupBookRoutes(router *gin.Engine, cfg *config.Config, db *gorm.DB, s3Client *s3.Client, log *zap.Logger) {
	rg := router.Group("/books")

	rg.GET("/", func(c *gin.Context) {
		var books []models.Book
		if err := db.Find(&books).Error; err != nil {
			log.Error("Database query for all books failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, books)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id := c.Param("id")
		var book models.Book
		if err := db.First(&book, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "book not found"})
				return
			}
			log.Error("DB error fetching book", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, book)
	})

	rg.GET("/popular", func(c *gin.Context) {
		var books []models.Book
		if err := db.Where("average_rating > ?", 4.5).Order("average_rating desc").Find(&books).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, books)
	})

	// Body-driven query endpoint for catalog searches.
	rg.POST("/query", func(c *gin.Context) {
		type BookQuery struct {
			Title     string   `json:"title"`
			Author    string   `json:"author"`
			Genre     string   `json:"genre"`
			MinRating *float64 `json:"min_rating"`
			Limit     int      `json:"limit"`
		}

		var req BookQuery
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		query := db.Model(&models.Book{})
		if req.Title != "" {
			query = query.Where("LOWER(title) LIKE ?", "%"+strings.ToLower(req.Title)+"%")
		}
		if req.Author != "" {
			query = query.Where("LOWER(author) LIKE ?", "%"+strings.ToLower(req.Author)+"%")
		}
		if req.Genre != "" {
			query = query.Where("genre = ?", req.Genre)
		}
		if req.MinRating != nil {
			query = query.Where("average_rating >= ?", *req.MinRating)
		}
		if req.Limit > 0 {
			query = query.Limit(req.Limit)
		}

		var books []models.Book
		if err := query.Order("id asc").Find(&books).Error; err != nil {
			log.Error("Database query for books failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, books)
	})

	// Catalog mutations are operator-only.
	admin := rg.Group("")
	admin.Use(apiKeyAuthMiddleware(cfg))

	admin.POST("/", func(c *gin.Context) {
		var book models.Book
		if err := c.ShouldBindJSON(&book); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := db.Create(&book).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create book"})
			return
		}
		c.JSON(http.StatusCreated, book)
	})

	admin.POST("/batch", func(c *gin.Context) {
		var books []models.Book
		if err := c.ShouldBindJSON(&books); err != nil || len(books) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := db.Create(&books).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create books"})
			return
		}
		c.JSON(http.StatusCreated, books)
	})

	admin.PUT("/:id", func(c *gin.Context) {
		id := c.Param("id")
		var book models.Book
		if err := db.First(&book, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "book not found"})
				return
			}
			log.Error("DB error checking for book on PUT", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		// Bind only the provided fields to avoid clobbering the row.
		var updateData map[string]interface{}
		if err := c.ShouldBindJSON(&updateData); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		delete(updateData, "id")

		if err := db.Model(&book).Updates(updateData).Error; err != nil {
			log.Error("DB error updating book", zap.String("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update book"})
			return
		}
		c.JSON(http.StatusOK, book)
	})

	admin.DELETE("/:id", func(c *gin.Context) {
		id := c.Param("id")
		res := db.Delete(&models.Book{}, id)
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "book not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "deleted"})
	})

	admin.POST("/:id/cover", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid book id"})
			return
		}
		var book models.Book
		if err := db.First(&book, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "book not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cover file is required"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read cover file"})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read cover file"})
			return
		}

		key := fmt.Sprintf("covers/%d-%d", book.ID, time.Now().Unix())
		url, err := storage.UploadCover(c.Request.Context(), s3Client, cfg, key, data, fileHeader.Header.Get("Content-Type"))
		if err != nil {
			log.Error("Cover upload failed", zap.Int64("book_id", book.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store cover"})
			return
		}

		if err := db.Model(&book).Update("cover_image_url", url).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update book"})
			return
		}
		c.JSON(http.StatusOK, book)
	})
}

func setupUserRoutes(router *gin.Engine, cfg *config.Config, users *services.UserService, log *zap.Logger) {
	rg := router.Group("/users")
	rg.Use(apiKeyAuthMiddleware(cfg))

	rg.GET("/:id", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		user, err := users.GetByID(id)
		if err != nil {
			log.Error("DB error fetching user", zap.Int64("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusOK, user)
	})

	rg.GET("/search", func(c *gin.Context) {
		fragment := c.Query("username")
		if fragment == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username query parameter is required"})
			return
		}
		found, err := users.SearchByUsername(fragment)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, found)
	})

	rg.PUT("/:id", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		var req struct {
			Username string `json:"username" binding:"required"`
			Email    string `json:"email"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		user, err := users.UpdateProfileFields(id, req.Username, req.Email)
		if err != nil {
			log.Error("DB error updating user", zap.Int64("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusOK, user)
	})

	rg.DELETE("/:id", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		deleted, err := users.Delete(id)
		if err != nil {
			log.Error("DB error deleting user", zap.Int64("id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete user"})
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "deleted"})
	})
}

func setupRatingRoutes(router *gin.Engine, db *gorm.DB, auth *services.AuthService, log *zap.Logger) {
	rg := router.Group("/ratings")
	rg.Use(jwtAuthMiddleware(auth))

	rg.POST("/", func(c *gin.Context) {
		var req struct {
			BookID int64 `json:"book_id" binding:"required"`
			Stars  int   `json:"stars" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "book_id and stars are required"})
			return
		}
		if req.Stars < 1 || req.Stars > 5 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "stars must be between 1 and 5"})
			return
		}
		var book models.Book
		if err := db.First(&book, req.BookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "book not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		rating := models.Rating{
			UserID: currentUserID(c),
			BookID: req.BookID,
			Stars:  req.Stars,
		}
		if err := db.Create(&rating).Error; err != nil {
			log.Error("Failed to create rating", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save rating"})
			return
		}
		c.JSON(http.StatusCreated, rating)
	})

	rg.GET("/", func(c *gin.Context) {
		var ratings []models.Rating
		if err := db.Where("user_id = ?", currentUserID(c)).Order("id desc").Find(&ratings).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, ratings)
	})
}

func setupProfileRoutes(router *gin.Engine, auth *services.AuthService, profiles *services.ProfileService, log *zap.Logger) {
	rg := router.Group("/profile")
	rg.Use(jwtAuthMiddleware(auth))

	rg.GET("/", func(c *gin.Context) {
		profile, err := profiles.FindProfile(currentUserID(c))
		if err != nil {
			log.Error("Failed to load profile", zap.Int64("user_id", currentUserID(c)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, profile)
	})

	// Reading-history import: CSV upload in, synthesized profile out.
	rg.POST("/import", func(c *gin.Context) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "history file is required"})
			return
		}
		if fileHeader.Size > services.MaxHistoryUploadBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds the 10MB limit"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read history file"})
			return
		}
		defer file.Close()

		profile, err := profiles.SynthesizeUserProfile(c.Request.Context(), currentUserID(c), file, fileHeader.Size)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrHistoryTooLarge):
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
			case errors.Is(err, services.ErrMalformedHistory):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				log.Error("Profile synthesis failed", zap.Int64("user_id", currentUserID(c)), zap.Error(err))
				c.JSON(http.StatusBadGateway, gin.H{"error": "profile synthesis failed"})
			}
			return
		}
		c.JSON(http.StatusOK, profile)
	})
}

func setupRecommendationRoutes(router *gin.Engine, cfg *config.Config, auth *services.AuthService, recs *services.RecommendationService, refresh *services.RefreshService, log *zap.Logger) {
	rg := router.Group("/recommendations")
	rg.Use(jwtAuthMiddleware(auth))

	rg.POST("/", func(c *gin.Context) {
		var reqCtx models.RequestContext
		if err := c.ShouldBindJSON(&reqCtx); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		generated, err := recs.SynthesizeRecommendations(c.Request.Context(), currentUserID(c), reqCtx)
		if err != nil {
			log.Error("Recommendation synthesis failed", zap.Int64("user_id", currentUserID(c)), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "recommendation synthesis failed"})
			return
		}
		recommendationsCounter.Add(float64(len(generated)))
		c.JSON(http.StatusOK, generated)
	})

	rg.GET("/", func(c *gin.Context) {
		history, err := recs.HistoryByUser(currentUserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, history)
	})

	rg.DELETE("/:id", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid recommendation id"})
			return
		}
		deleted, err := recs.Delete(id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "recommendation not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "deleted"})
	})

	rg.DELETE("/", func(c *gin.Context) {
		count, err := recs.DeleteByUser(currentUserID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": count})
	})

	// Operator trigger for the nightly refresh job, fire-and-forget.
	ops := router.Group("/refresh")
	ops.Use(apiKeyAuthMiddleware(cfg))
	ops.POST("/profiles", func(c *gin.Context) {
		go func() {
			count, err := refresh.RunForAllUsers(context.Background())
			if err != nil {
				log.Error("Async profile refresh failed", zap.Error(err))
			} else {
				profilesRefreshedCounter.Add(float64(count))
				log.Info("Async profile refresh completed", zap.Int("profiles_refreshed", count))
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Profile refresh triggered."})
	})
}
