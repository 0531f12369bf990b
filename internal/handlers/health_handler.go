package handlers

import (
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/dto"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db    *gorm.DB
	redis redis.UniversalClient
}

// NewHealthHandler reports DB status, and redis status when rdb is non-nil.
func NewHealthHandler(db *gorm.DB, rdb redis.UniversalClient) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status := "ok"
	code := fiber.StatusOK

	dbStatus := "ok"
	if err := database.Ping(h.db); err != nil {
		slog.WarnContext(c.UserContext(), "health check: database unreachable", "request_id", requestID(c), "error", err)
		dbStatus = "unhealthy"
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}

	var redisStatus string
	if h.redis != nil {
		redisStatus = "ok"
		if err := h.redis.Ping(c.UserContext()).Err(); err != nil {
			slog.WarnContext(c.UserContext(), "health check: redis unreachable", "request_id", requestID(c), "error", err)
			redisStatus = "unhealthy"
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}
	}

	return c.Status(code).JSON(dto.HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        dbStatus,
		Redis:     redisStatus,
	})
}
