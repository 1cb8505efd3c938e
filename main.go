package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"paper-review/config"
	"paper-review/models"
	"paper-review/services"
	"paper-review/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var (
	papersUploadedCounter      prometheus.Counter
	evaluationsCounter         prometheus.Counter
	duplicateRejectionsCounter prometheus.Counter
)

func init() {
	papersUploadedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "papers_uploaded_total",
			Help: "Total number of papers uploaded.",
		},
	)
	evaluationsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "evaluations_submitted_total",
			Help: "Total number of evaluations submitted.",
		},
	)
	duplicateRejectionsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "duplicate_evaluations_rejected_total",
			Help: "Total number of submissions rejected by the duplicate guard.",
		},
	)
	prometheus.MustRegister(papersUploadedCounter, evaluationsCounter, duplicateRejectionsCounter)
}

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

	// Setup Database Connection
	mongoClient, err := storage.NewMongoClient(context.Background(), cfg)
	if err != nil {
		logging.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer mongoClient.Disconnect(context.Background())
	logging.Info("Successfully connected to MongoDB.")

	db := mongoClient.Database(cfg.MongoDB)
	if err := storage.EnsureIndexes(context.Background(), db); err != nil {
		logging.Fatal("Failed to create indexes", zap.Error(err))
	}

	// Setup Repositories
	paperRepo := storage.NewPaperRepo(db)
	evalRepo := storage.NewEvaluationRepo(db)
	reviewerRepo := storage.NewReviewerRepo(db)

	// Setup Blob Store & Cache
	blobs, err := storage.NewS3Store(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}
	cache, err := storage.NewCache(context.Background(), cfg, logging)
	if err != nil {
		logging.Fatal("Redis connection failed", zap.Error(err))
	}
	defer cache.Close()

	// Setup Scoring Engine
	scoring := services.NewScoring(paperRepo, evalRepo, reviewerRepo, blobs, logging)

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup Routes
	setupPaperRoutes(router, scoring, paperRepo, blobs, cache, logging)
	setupEvaluationRoutes(router, scoring, cache, logging)
	setupAdminRoutes(router, scoring, cache, logging)

	// Setup Cron: nächtlicher Analytics-Snapshot nach S3
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.SnapshotSchedule, func() {
		logging.Info("Running scheduled analytics snapshot...")
		if err := uploadAnalyticsSnapshot(context.Background(), scoring, blobs); err != nil {
			logging.Error("Snapshot job failed", zap.Error(err))
		} else {
			logging.Info("Snapshot job completed")
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

// respondError mappt die Fehler-Taxonomie des Kerns auf HTTP-Statuscodes.
func respondError(c *gin.Context, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrDuplicateEvaluation):
		duplicateRejectionsCounter.Inc()
		c.JSON(http.StatusConflict, gin.H{"error": "you have already evaluated this paper"})
	default:
		log.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func setupPaperRoutes(router *gin.Engine, scoring *services.Scoring, papers *storage.PaperRepo, blobs *storage.S3Store, cache *storage.Cache, log *zap.Logger) {
	rg := router.Group("/papers")

	// Einfacher GET-Endpunkt, um alle Paper abzurufen
	rg.GET("/", func(c *gin.Context) {
		all, err := papers.FindAll(c.Request.Context())
		if err != nil {
			log.Error("Database query for all papers failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if all == nil {
			all = []models.Paper{}
		}
		c.JSON(http.StatusOK, all)
	})

	rg.GET("/:id", func(c *gin.Context) {
		id, err := parseObjectID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		paper, err := papers.FindByID(c.Request.Context(), id)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, paper)
	})

	// POST - Upload: multipart mit Metadaten + PDF. Das PDF geht in den
	// S3-Bucket, die Metadaten nach Mongo.
	rg.POST("/", func(c *gin.Context) {
		title := strings.TrimSpace(c.PostForm("title"))
		if title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
			return
		}
		var authors []string
		if raw := c.PostForm("authors"); raw != "" {
			for _, a := range strings.Split(raw, ",") {
				if a = strings.TrimSpace(a); a != "" {
					authors = append(authors, a)
				}
			}
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no file provided"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
			return
		}

		contentType := fileHeader.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/pdf"
		}
		key := fmt.Sprintf("papers/%d-%s", time.Now().UnixNano(), fileHeader.Filename)
		fileURL, err := blobs.Upload(c.Request.Context(), key, contentType, data)
		if err != nil {
			log.Error("S3 upload failed", zap.String("key", key), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "file upload failed"})
			return
		}

		paper := &models.Paper{
			Title:    title,
			Authors:  authors,
			Abstract: c.PostForm("abstract"),
			FileKey:  key,
			FileURL:  fileURL,
		}
		if _, err := papers.Insert(c.Request.Context(), paper); err != nil {
			log.Error("Failed to create paper", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create paper"})
			return
		}

		papersUploadedCounter.Inc()
		cache.Invalidate(c.Request.Context(), storage.CacheKeyAnalytics, storage.CacheKeyStats)
		log.Info("Paper uploaded", zap.String("id", paper.ID.Hex()), zap.String("title", paper.Title))
		c.JSON(http.StatusCreated, paper)
	})

	// PUT - Metadaten aktualisieren. Nur die gesendeten Felder werden
	// übernommen, um Überschreiben zu verhindern.
	rg.PUT("/:id", func(c *gin.Context) {
		id, err := parseObjectID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}

		var payload struct {
			Title    *string  `json:"title"`
			Authors  []string `json:"authors"`
			Abstract *string  `json:"abstract"`
		}
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		fields := bson.M{}
		if payload.Title != nil {
			if strings.TrimSpace(*payload.Title) == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "title must not be empty"})
				return
			}
			fields["title"] = strings.TrimSpace(*payload.Title)
		}
		if payload.Authors != nil {
			fields["authors"] = payload.Authors
		}
		if payload.Abstract != nil {
			fields["abstract"] = *payload.Abstract
		}
		if len(fields) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no updatable fields provided"})
			return
		}

		paper, err := papers.Update(c.Request.Context(), id, fields)
		if err != nil {
			respondError(c, log, err)
			return
		}
		cache.Invalidate(c.Request.Context(), storage.CacheKeyAnalytics, storage.CacheKeyStats)
		c.JSON(http.StatusOK, paper)
	})

	// DELETE - entfernt Paper, Evaluationen (Kaskade) und best-effort den Blob.
	rg.DELETE("/:id", func(c *gin.Context) {
		if err := scoring.DeletePaper(c.Request.Context(), c.Param("id")); err != nil {
			respondError(c, log, err)
			return
		}
		cache.Invalidate(c.Request.Context(), storage.CacheKeyAnalytics, storage.CacheKeyStats)
		c.JSON(http.StatusOK, gin.H{"message": "paper deleted"})
	})

	// GET - streamt das gespeicherte PDF aus dem Blob-Store.
	rg.GET("/:id/file", func(c *gin.Context) {
		id, err := parseObjectID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
			return
		}
		paper, err := papers.FindByID(c.Request.Context(), id)
		if err != nil {
			respondError(c, log, err)
			return
		}
		data, contentType, err := blobs.Download(c.Request.Context(), paper.FileKey)
		if err != nil {
			log.Error("Blob download failed", zap.String("file_key", paper.FileKey), zap.Error(err))
			c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", paper.ID.Hex()+".pdf"))
		c.Data(http.StatusOK, contentType, data)
	})

	// GET - abgeleiteter Status + Mittelwerte für ein einzelnes Paper.
	rg.GET("/:id/aggregate", func(c *gin.Context) {
		agg, err := scoring.AggregateForPaper(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, agg)
	})
}

func setupEvaluationRoutes(router *gin.Engine, scoring *services.Scoring, cache *storage.Cache, log *zap.Logger) {
	rg := router.Group("/evaluations")

	// POST - anonyme Evaluations-Abgabe mit Duplikat-Guard.
	rg.POST("/", func(c *gin.Context) {
		var req struct {
			PaperID string `json:"paperId" binding:"required"`
			Scores  struct {
				Originality  *float64 `json:"originality" binding:"required"`
				Methodology  *float64 `json:"methodology" binding:"required"`
				Clarity      *float64 `json:"clarity" binding:"required"`
				Significance *float64 `json:"significance" binding:"required"`
				Overall      *float64 `json:"overall"`
			} `json:"scores" binding:"required"`
			Comments       string `json:"comments"`
			EvaluatorEmail string `json:"evaluatorEmail"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "paperId and scores are required"})
			return
		}

		in := services.SubmissionInput{
			PaperID: req.PaperID,
			Scores: models.Scores{
				Originality:  *req.Scores.Originality,
				Methodology:  *req.Scores.Methodology,
				Clarity:      *req.Scores.Clarity,
				Significance: *req.Scores.Significance,
			},
			Comments:       req.Comments,
			EvaluatorEmail: req.EvaluatorEmail,
		}
		if req.Scores.Overall != nil {
			in.Scores.Overall = *req.Scores.Overall
		}

		id, err := scoring.SubmitEvaluation(c.Request.Context(), in)
		if err != nil {
			respondError(c, log, err)
			return
		}

		evaluationsCounter.Inc()
		cache.Invalidate(c.Request.Context(), storage.CacheKeyAnalytics, storage.CacheKeyStats)
		c.JSON(http.StatusCreated, gin.H{"evaluationId": id.Hex()})
	})

	// GET - fragt das Ledger, ob diese Email dieses Paper schon bewertet hat.
	rg.GET("/check", func(c *gin.Context) {
		paperID := c.Query("paperId")
		if paperID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "paperId is required"})
			return
		}
		has, err := scoring.HasEvaluated(c.Request.Context(), c.Query("userEmail"), paperID)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"hasEvaluated": has})
	})
}

func setupAdminRoutes(router *gin.Engine, scoring *services.Scoring, cache *storage.Cache, log *zap.Logger) {
	rg := router.Group("/admin")

	// GET - globale Analytics. Die ungefilterte Sicht wird in Redis gecacht.
	rg.GET("/analytics", func(c *gin.Context) {
		filter := services.AnalyticsFilter{Status: c.Query("status")}
		if y := c.Query("year"); y != "" {
			year, err := strconv.Atoi(y)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
				return
			}
			filter.Year = year
		}

		unfiltered := filter.Year == 0 && (filter.Status == "" || filter.Status == "all")
		if unfiltered {
			if payload, ok := cache.Get(c.Request.Context(), storage.CacheKeyAnalytics); ok {
				c.Data(http.StatusOK, "application/json", payload)
				return
			}
		}

		agg, err := scoring.AggregateAcrossPapers(c.Request.Context(), filter)
		if err != nil {
			respondError(c, log, err)
			return
		}
		if unfiltered {
			if payload, err := json.Marshal(agg); err == nil {
				cache.Set(c.Request.Context(), storage.CacheKeyAnalytics, payload)
			}
		}
		c.JSON(http.StatusOK, agg)
	})

	// GET - Dashboard-Statistik (ungefiltert, gecacht).
	rg.GET("/stats", func(c *gin.Context) {
		if payload, ok := cache.Get(c.Request.Context(), storage.CacheKeyStats); ok {
			c.Data(http.StatusOK, "application/json", payload)
			return
		}
		stats, err := scoring.Stats(c.Request.Context())
		if err != nil {
			respondError(c, log, err)
			return
		}
		if payload, err := json.Marshal(stats); err == nil {
			cache.Set(c.Request.Context(), storage.CacheKeyStats, payload)
		}
		c.JSON(http.StatusOK, stats)
	})

	// GET - sortier- und filterbare Evaluationsliste mit anonymen Ordinalen.
	rg.GET("/evaluations/detailed", func(c *gin.Context) {
		q := services.DetailQuery{
			SortBy:    c.DefaultQuery("sortBy", "createdAt"),
			SortOrder: c.DefaultQuery("sortOrder", "-1"),
		}
		if raw := c.Query("paperId"); raw != "" {
			for _, id := range strings.Split(raw, ",") {
				if id = strings.TrimSpace(id); id != "" {
					q.PaperIDs = append(q.PaperIDs, id)
				}
			}
		}
		if raw := c.Query("minScore"); raw != "" {
			min, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid minScore"})
				return
			}
			q.MinScore = min
		}

		rows, err := scoring.DetailedEvaluations(c.Request.Context(), q)
		if err != nil {
			respondError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, rows)
	})

	// GET - Export als JSON oder CSV, nur Paper-Aggregate und Buckets.
	rg.GET("/export", func(c *gin.Context) {
		filter := services.ExportFilter{}
		if y := c.Query("year"); y != "" {
			year, err := strconv.Atoi(y)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
				return
			}
			filter.Year = year
		}
		if raw := c.Query("paperId"); raw != "" {
			for _, id := range strings.Split(raw, ",") {
				if id = strings.TrimSpace(id); id != "" {
					filter.PaperIDs = append(filter.PaperIDs, id)
				}
			}
		}

		entries, err := scoring.BuildExport(c.Request.Context(), filter)
		if err != nil {
			respondError(c, log, err)
			return
		}

		if c.DefaultQuery("format", "json") == "csv" {
			var buf bytes.Buffer
			if err := services.WriteCSV(&buf, entries); err != nil {
				log.Error("CSV export failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
				return
			}
			c.Header("Content-Disposition", `attachment; filename="evaluations-export.csv"`)
			c.Data(http.StatusOK, "text/csv", buf.Bytes())
			return
		}
		c.Header("Content-Disposition", `attachment; filename="evaluations-export.json"`)
		c.JSON(http.StatusOK, entries)
	})
}

// uploadAnalyticsSnapshot berechnet die globale Sicht und legt sie als
// gzip-JSON im S3 ab.
func uploadAnalyticsSnapshot(ctx context.Context, scoring *services.Scoring, blobs *storage.S3Store) error {
	agg, err := scoring.AggregateAcrossPapers(ctx, services.AnalyticsFilter{})
	if err != nil {
		return err
	}
	payload, err := json.Marshal(agg)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}

	key := fmt.Sprintf("snapshots/analytics-%s.json.gz", time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	_, err = blobs.Upload(ctx, key, "application/gzip", buf.Bytes())
	return err
}

func parseObjectID(raw string) (primitive.ObjectID, error) {
	return primitive.ObjectIDFromHex(raw)
}
