// Package http provides HTTP server infrastructure including module registration.
package http

import (
	"context"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

// RouterConfig combines the config interfaces needed by the HTTP router.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker exposes minimal functionality for readiness checks.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RouterContext groups the route trees modules mount their handlers on.
type RouterContext struct {
	// V1 is the unauthenticated /api/v1 tree (health, postback).
	V1 *gin.RouterGroup
	// Intake is the rate-limited, API-key-authenticated intake tree.
	Intake *gin.RouterGroup
	// Protected is the JWT-authenticated operator tree.
	Protected *gin.RouterGroup
}

// Module is a bounded context that mounts HTTP routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// App holds the fully initialized application dependencies.
// This is populated by main.go (the composition root) and passed to the router.
type App struct {
	// Config holds the router configuration (HTTP and JWT settings only).
	Config RouterConfig
	// Logger is the structured logger.
	Logger *logger.Logger
	// Health is used for readiness/health checks (DB ping).
	Health HealthChecker
	// Modules contains all HTTP-facing domain modules.
	Modules []Module
}
