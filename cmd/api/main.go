package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"classattend/internal/auth"
	"classattend/internal/cloudinary"
	"classattend/internal/config"
	"classattend/internal/enroll"
	"classattend/internal/excuse"
	"classattend/internal/faceclient"
	"classattend/internal/httpmiddleware"
	"classattend/internal/ledger"
	"classattend/internal/match"
	"classattend/internal/memstore"
	"classattend/internal/metrics"
	"classattend/internal/postgres"
	"classattend/internal/queue"
	"classattend/internal/schedule"
	"classattend/internal/store"
	"classattend/internal/verify"
)

// repository is the union of everything the API needs from storage; both the
// Postgres and the in-memory implementations satisfy it.
type repository interface {
	enroll.IdentityRepo
	ledger.ClassRepo
	ledger.RecordStore
	CreateClass(ctx context.Context, class ledger.Class) error
	AddMember(ctx context.Context, classID, identityID string) error
	UpsertDevice(ctx context.Context, deviceID string) error
	SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error
	RevokeRefreshToken(ctx context.Context, token string) error
	RefreshTokenActive(ctx context.Context, token string) (bool, error)
}

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	var (
		repo repository
		db   *store.DB
	)
	if cfg.StoreBackend == "memory" {
		log.Println("using in-memory store (data is not persisted)")
		repo = memstore.New()
	} else {
		var err error
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		pg := postgres.NewRepository(db.Client)
		if err := pg.EnsureSchema(context.Background()); err != nil {
			return err
		}
		repo = pg
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "classattend:enrollments")
	}

	led := ledger.New(repo, repo, cfg.TimeOutGrace)
	excuses := excuse.New(repo)
	coordinator := verify.New(repo, led, cfg.KioskThreshold)
	enrollSvc := enroll.NewService(repo, cfg.MatchThreshold)

	var cdnClient *cloudinary.Client
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		cdnClient = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.Println("Cloudinary configured:", cfg.CloudinaryCloudName)
	} else {
		log.Println("Cloudinary not configured (CLOUDINARY_CLOUD_NAME / API_KEY / API_SECRET not set)")
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		// Redis only matters when the queue runs on it.
		redisHealthy := cfg.QueueBackend == "memory" || redisClient.Healthy(c.Request.Context())
		dbHealthy := db != nil || cfg.StoreBackend == "memory"
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	// Kiosk registration: exchanges a device id for a token pair. Kiosks run
	// unattended, so every other route requires the bearer token.
	r.POST("/v1/devices/register", func(c *gin.Context) {
		var req struct {
			DeviceID string `json:"device_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := repo.UpsertDevice(c.Request.Context(), req.DeviceID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		tokens, err := auth.Issue(req.DeviceID, "device", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}

		_ = repo.SaveRefreshToken(c.Request.Context(), req.DeviceID, tokens.RefreshToken, tokens.RefreshExp)

		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	// Token rotation: a valid, unrevoked refresh token buys a fresh pair and
	// is revoked in the same call. Outside the bearer group because the
	// access token is typically already expired when this is called.
	r.POST("/v1/devices/refresh", func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		claims, err := auth.Parse(req.RefreshToken, cfg.JWTSigningKey, cfg.JWTIssuer)
		if err != nil || claims.Role != "device" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
			return
		}
		active, err := repo.RefreshTokenActive(c.Request.Context(), req.RefreshToken)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token lookup failed"})
			return
		}
		if !active {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "refresh token revoked or expired"})
			return
		}

		tokens, err := auth.Issue(claims.Subject, "device", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		if err := repo.RevokeRefreshToken(c.Request.Context(), req.RefreshToken); err != nil {
			log.Printf("refresh token revoke failed for device %s: %v", claims.Subject, err)
		}
		_ = repo.SaveRefreshToken(c.Request.Context(), claims.Subject, tokens.RefreshToken, tokens.RefreshExp)

		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	// Staff login by face: matches at the looser login threshold and issues
	// a token carrying the identity's role. Reviewer routes check that role.
	r.POST("/v1/staff/token", func(c *gin.Context) {
		var req struct {
			Embedding []float32 `json:"embedding"`
			ImageURL  string    `json:"image_url"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sample, err := resolveSample(c.Request.Context(), face, req.Embedding, req.ImageURL)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		enrolled, err := repo.ListEnrolled(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "gallery load failed"})
			return
		}
		res, ok, err := match.Match(sample, enrolled, cfg.MatchThreshold)
		if err != nil {
			writeRejection(c, err)
			return
		}
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not recognized", "distance": res.Distance})
			return
		}
		ident, found, err := repo.GetIdentity(c.Request.Context(), res.IdentityID)
		if err != nil || !found {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "identity load failed"})
			return
		}
		if ident.Role != enroll.RoleTeacher && ident.Role != enroll.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "staff only"})
			return
		}

		tokens, err := auth.Issue(ident.ID, string(ident.Role), cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"access_token": tokens.AccessToken,
			"identity_id":  ident.ID,
			"role":         ident.Role,
			"distance":     res.Distance,
			"expires_at":   tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.BearerAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	// Upload endpoint — uploads a base64 image or multipart file to Cloudinary.
	// Returns the public URL for use in /v1/enroll or /v1/excuses.
	authGroup.POST("/upload", func(c *gin.Context) {
		if cdnClient == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
			return
		}

		contentType := c.ContentType()
		var result *cloudinary.UploadResult
		var err error

		switch {
		case strings.Contains(contentType, "multipart/form-data"):
			file, header, ferr := c.Request.FormFile("file")
			if ferr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
				return
			}
			defer file.Close()
			data, ferr := io.ReadAll(file)
			if ferr != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "read file failed"})
				return
			}
			result, err = cdnClient.UploadBytes(data, header.Filename)

		default:
			var body struct {
				Data string `json:"data" binding:"required"`
			}
			if berr := c.ShouldBindJSON(&body); berr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "provide {\"data\": \"<base64 data URL>\"}"})
				return
			}
			result, err = cdnClient.UploadBase64(body.Data)
		}

		if err != nil {
			log.Printf("cloudinary upload failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"url":       result.SecureURL,
			"public_id": result.PublicID,
			"bytes":     result.Bytes,
		})
	})

	// Kiosk verification: matches the live sample and lets the ledger decide
	// between time-in and time-out for the class.
	authGroup.POST("/verify", func(c *gin.Context) {
		var req struct {
			ClassID   string    `json:"class_id" binding:"required"`
			Embedding []float32 `json:"embedding"`
			ImageURL  string    `json:"image_url"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Anti-spoofing gate for unattended kiosks: when enabled and the
		// sample arrives as an image, reject photos-of-photos before any
		// matching happens.
		if cfg.LivenessCheck && len(req.Embedding) == 0 && req.ImageURL != "" {
			live, err := face.Liveness(c.Request.Context(), req.ImageURL)
			if err != nil {
				log.Printf("liveness check failed: %v", err)
				c.JSON(http.StatusBadGateway, gin.H{"error": "liveness check unavailable"})
				return
			}
			if !live.IsLive {
				metrics.Verifications.WithLabelValues("not_live").Inc()
				c.JSON(http.StatusForbidden, gin.H{
					"error":      "liveness_failed",
					"confidence": live.Confidence,
				})
				return
			}
		}

		sample, err := resolveSample(c.Request.Context(), face, req.Embedding, req.ImageURL)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		outcome, err := coordinator.Verify(c.Request.Context(), req.ClassID, sample, time.Now())
		if err != nil {
			if outcome.Recognized {
				metrics.Verifications.WithLabelValues("rejected").Inc()
				writeRejectionFor(c, err, outcome)
				return
			}
			metrics.Verifications.WithLabelValues("error").Inc()
			writeRejection(c, err)
			return
		}
		if !outcome.Recognized {
			metrics.Verifications.WithLabelValues("not_recognized").Inc()
			c.JSON(http.StatusOK, gin.H{
				"recognized": false,
				"distance":   outcome.Distance,
			})
			return
		}

		metrics.Verifications.WithLabelValues(string(outcome.Action)).Inc()
		c.JSON(http.StatusOK, gin.H{
			"recognized":  true,
			"identity_id": outcome.IdentityID,
			"distance":    outcome.Distance,
			"action":      outcome.Action,
			"status":      ledger.StatusOf(outcome.Record),
		})
	})

	// Identity registration (metadata only; the embedding arrives via the
	// enrollment pipeline).
	authGroup.POST("/identities", auth.RequireRole("teacher", "admin", "device"), func(c *gin.Context) {
		var req struct {
			ID   string `json:"id" binding:"required"`
			Name string `json:"name"`
			Role string `json:"role" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		ident := enroll.Identity{ID: req.ID, Name: req.Name, Role: enroll.Role(req.Role)}
		if err := enrollSvc.Register(c.Request.Context(), ident); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": req.ID})
	})

	// Enrollment: queue the job; the worker computes the embedding and runs
	// the duplicate-identity check.
	authGroup.POST("/enroll", func(c *gin.Context) {
		var req struct {
			IdentityID string `json:"identity_id" binding:"required"`
			ImageURL   string `json:"image_url" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if _, found, err := repo.GetIdentity(c.Request.Context(), req.IdentityID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "identity load failed"})
			return
		} else if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "identity not registered"})
			return
		}

		body, _ := json.Marshal(map[string]string{
			"identity_id": req.IdentityID,
			"image_url":   req.ImageURL,
		})
		if err := q.Publish(c.Request.Context(), queue.Message{Type: "enroll", Body: body}); err != nil {
			log.Printf("queue publish failed: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "enrollment queue unavailable"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"identity_id": req.IdentityID, "status": "queued"})
	})

	// Class administration.
	authGroup.POST("/classes", auth.RequireRole("teacher", "admin"), func(c *gin.Context) {
		var req struct {
			ID       string            `json:"id"`
			Subject  string            `json:"subject" binding:"required"`
			JoinCode string            `json:"join_code"`
			Windows  []schedule.Window `json:"windows" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		for _, w := range req.Windows {
			if _, err := schedule.ParseClock(w.Start); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			if _, err := schedule.ParseClock(w.End); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}
		class := ledger.Class{ID: req.ID, Subject: req.Subject, JoinCode: req.JoinCode, Windows: req.Windows}
		if err := repo.CreateClass(c.Request.Context(), class); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": req.ID})
	})

	authGroup.POST("/classes/:id/members", auth.RequireRole("teacher", "admin"), func(c *gin.Context) {
		var req struct {
			IdentityID string `json:"identity_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := repo.AddMember(c.Request.Context(), c.Param("id"), req.IdentityID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"class_id": c.Param("id"), "identity_id": req.IdentityID})
	})

	// Attendance listing for one class and day, with derived statuses.
	// Students with no record at all appear as absent.
	authGroup.GET("/attendance", func(c *gin.Context) {
		classID := c.Query("class_id")
		date := c.Query("date")
		if classID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "class_id required"})
			return
		}
		if date == "" {
			date = time.Now().Format(ledger.DateLayout)
		}

		records, err := repo.ListByClassDate(c.Request.Context(), classID, date)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		byIdentity := make(map[string]ledger.Record, len(records))
		for _, rec := range records {
			byIdentity[rec.Key.IdentityID] = rec
		}

		students, err := repo.ListStudentIDs(c.Request.Context(), classID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		type entry struct {
			IdentityID string        `json:"identity_id"`
			Status     ledger.Status `json:"status"`
			TimeIn     *time.Time    `json:"time_in,omitempty"`
			TimeOut    *time.Time    `json:"time_out,omitempty"`
			Method     string        `json:"method,omitempty"`
		}
		out := make([]entry, 0, len(students))
		seen := make(map[string]bool, len(students))
		for _, id := range students {
			seen[id] = true
			rec := byIdentity[id] // zero record derives to absent
			rec.Key.IdentityID = id
			out = append(out, entry{
				IdentityID: id,
				Status:     ledger.StatusOf(rec),
				TimeIn:     rec.TimeIn,
				TimeOut:    rec.TimeOut,
				Method:     rec.Method,
			})
		}
		for _, rec := range records {
			if !seen[rec.Key.IdentityID] {
				out = append(out, entry{
					IdentityID: rec.Key.IdentityID,
					Status:     ledger.StatusOf(rec),
					TimeIn:     rec.TimeIn,
					TimeOut:    rec.TimeOut,
					Method:     rec.Method,
				})
			}
		}
		c.JSON(http.StatusOK, gin.H{"class_id": classID, "date": date, "entries": out})
	})

	// Excuse submission (student side).
	authGroup.POST("/excuses", func(c *gin.Context) {
		var req struct {
			ClassID    string `json:"class_id" binding:"required"`
			Date       string `json:"date" binding:"required"`
			IdentityID string `json:"identity_id" binding:"required"`
			Reason     string `json:"reason" binding:"required"`
			ImageURL   string `json:"image_url"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		key := ledger.Key{ClassID: req.ClassID, Date: req.Date, IdentityID: req.IdentityID}
		exc, err := excuses.Submit(c.Request.Context(), key, req.Reason, req.ImageURL, time.Now())
		if err != nil {
			writeRejection(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"status": exc.Status, "submitted_at": exc.SubmittedAt})
	})

	// Excuse review (staff only).
	authGroup.POST("/excuses/resolve", auth.RequireRole("teacher", "admin"), func(c *gin.Context) {
		var req struct {
			ClassID    string `json:"class_id" binding:"required"`
			Date       string `json:"date" binding:"required"`
			IdentityID string `json:"identity_id" binding:"required"`
			Approve    *bool  `json:"approve" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		key := ledger.Key{ClassID: req.ClassID, Date: req.Date, IdentityID: req.IdentityID}
		status, err := excuses.Resolve(c.Request.Context(), key, *req.Approve)
		if err != nil {
			writeRejection(c, err)
			return
		}
		decision := "declined"
		if *req.Approve {
			decision = "approved"
		}
		metrics.ExcuseDecisions.WithLabelValues(decision).Inc()
		c.JSON(http.StatusOK, gin.H{"decision": decision, "derived_status": status})
	})

	// Admin escape hatch: close the identity's first open session today (the
	// documented tie-break for stale open sessions).
	authGroup.POST("/sessions/close", auth.RequireRole("admin"), func(c *gin.Context) {
		var req struct {
			IdentityID string `json:"identity_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rec, err := led.CloseFirstOpen(c.Request.Context(), req.IdentityID, time.Now())
		if err != nil {
			writeRejection(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"class_id": rec.Key.ClassID, "time_out": rec.TimeOut})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// resolveSample turns the request payload into an embedding: either taken
// verbatim or computed from an image URL by the face service.
func resolveSample(ctx context.Context, face *faceclient.Client, embedding []float32, imageURL string) ([]float32, error) {
	if len(embedding) > 0 {
		return embedding, nil
	}
	if imageURL == "" {
		return nil, errors.New("embedding or image_url required")
	}
	return face.Embed(ctx, imageURL)
}

// writeRejection maps engine errors to HTTP responses carrying enough
// structure for the kiosk to explain the rejection.
func writeRejection(c *gin.Context, err error) {
	writeRejectionFor(c, err, verify.Outcome{})
}

func writeRejectionFor(c *gin.Context, err error, outcome verify.Outcome) {
	body := gin.H{"error": rejectionCode(err), "detail": err.Error()}
	if outcome.IdentityID != "" {
		body["identity_id"] = outcome.IdentityID
	}

	var winErr *ledger.WindowError
	if errors.As(err, &winErr) && winErr.Window != (schedule.Window{}) {
		body["window"] = gin.H{
			"day":   winErr.Window.Day,
			"start": winErr.Window.Start,
			"end":   winErr.Window.End,
		}
	}
	var conflict *ledger.ConflictError
	if errors.As(err, &conflict) && conflict.OpenClassID != "" {
		body["open_class_id"] = conflict.OpenClassID
	}

	switch {
	case errors.Is(err, ledger.ErrNoScheduleMatch),
		errors.Is(err, ledger.ErrTooEarly),
		errors.Is(err, ledger.ErrTooLate):
		c.JSON(http.StatusUnprocessableEntity, body)
	case errors.Is(err, ledger.ErrAlreadyExists),
		errors.Is(err, ledger.ErrAlreadyClosed),
		errors.Is(err, ledger.ErrNoOpenSession),
		errors.Is(err, ledger.ErrAlreadyOpenElsewhere),
		errors.Is(err, ledger.ErrExcuseExists),
		errors.Is(err, ledger.ErrNotPending),
		errors.Is(err, match.ErrNoEnrolled):
		c.JSON(http.StatusConflict, body)
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "detail": "attempt failed"})
	}
}

func rejectionCode(err error) string {
	for _, known := range []struct {
		target error
		code   string
	}{
		{ledger.ErrNoScheduleMatch, "no_schedule_match"},
		{ledger.ErrTooEarly, "too_early"},
		{ledger.ErrTooLate, "too_late"},
		{ledger.ErrAlreadyExists, "already_exists"},
		{ledger.ErrAlreadyClosed, "already_closed"},
		{ledger.ErrNoOpenSession, "no_open_session"},
		{ledger.ErrAlreadyOpenElsewhere, "already_open_elsewhere"},
		{ledger.ErrExcuseExists, "excuse_exists"},
		{ledger.ErrNotPending, "not_pending"},
		{match.ErrNoEnrolled, "no_enrolled_identities"},
	} {
		if errors.Is(err, known.target) {
			return known.code
		}
	}
	return "internal"
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
