// Package middleware wires the global Fiber middleware chain.
package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/keyauth"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/xid"

	"pdfmerge/internal/config"
	"pdfmerge/internal/domain"
	"pdfmerge/internal/infra/logging"
	"pdfmerge/internal/infra/ratelimit"
)

const apiKeyLocal = "api_key"

// TokenStore is the token view the middleware needs.
type TokenStore interface {
	TokenRater
	Ready() bool
	Validate(token string) bool
}

// Deps are optional collaborators. A nil Tokens disables API key checks and
// token limits; a nil Storage builds one from the cache config.
type Deps struct {
	Tokens  TokenStore
	Storage fiber.Storage
}

// APIKey returns the validated API key of the request, or "".
func APIKey(c *fiber.Ctx) string {
	token, _ := c.Locals(apiKeyLocal).(string)
	return token
}

// Register attaches the global middleware chain to app.
func Register(app *fiber.App, cfg config.Config, deps Deps) {
	store := deps.Storage
	if store == nil {
		store = ratelimit.NewStore(ratelimit.RedisConfig{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.RateLimitDB,
		})
	}

	app.Use(cors.New())

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(healthcheck.New(healthcheck.Config{
		LivenessEndpoint:  "/ops/health",
		ReadinessEndpoint: "/ops/ready",
	}))

	rlCfg := RateLimitConfig{
		RateInterval:      cfg.RateLimiter.Interval,
		EnableUserLimiter: cfg.RateLimiter.EnableUserLimiter || cfg.RateLimiter.UserLimit > 0,
		UserLimit:         cfg.RateLimiter.UserLimit,
	}
	var rater TokenRater
	if deps.Tokens != nil {
		app.Use(APIKeyAuth(deps.Tokens))
		rlCfg.EnableTokenRateLimiter = true
		rater = deps.Tokens
	}
	app.Use(TokenRateLimit(rlCfg, rater, store, NewLimiterCache()))
	app.Use(UserRateLimit(rlCfg, store))

	app.Use(RequestLogger())
}

// APIKeyAuth validates X-API-Key against tokens. Requests without the
// header pass through anonymously.
func APIKeyAuth(tokens TokenStore) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:X-API-Key",
		ContextKey: apiKeyLocal,
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if !tokens.Ready() {
				return false, domain.ErrTokenStoreNotReady
			}
			if !tokens.Validate(key) {
				return false, domain.ErrInvalidAPIKey
			}
			return true, nil
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || c.Get("X-API-Key") == ""
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// keyauth may call this with a nil error.
			status := fiber.StatusUnauthorized
			if err == nil {
				err = fiber.ErrUnauthorized
			}
			if errors.Is(err, domain.ErrTokenStoreNotReady) {
				status = fiber.StatusServiceUnavailable
			}
			return c.Status(status).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    status,
					"message": err.Error(),
				},
			})
		},
	})
}

// RequestLogger logs every request that reaches it.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = c.GetRespHeader(fiber.HeaderXRequestID)
		}
		logging.Info("Incoming request", "method", c.Method(), "path", c.Path(), "request_id", requestID)
		return c.Next()
	}
}
