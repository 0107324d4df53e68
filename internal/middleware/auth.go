package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iamconsole/backend-go/internal/auth"
)

const claimsContextKey = "claims"

// AuthConfig holds configuration for the auth middleware
type AuthConfig struct {
	// JWTManager is the JWT manager instance
	JWTManager *auth.JWTManager

	// Skipper defines a function to skip middleware
	Skipper Skipper

	// ErrorHandler defines a function which is executed for an invalid token
	ErrorHandler AuthErrorHandler

	// SuccessHandler defines a function which is executed for a valid token
	SuccessHandler AuthSuccessHandler

	// TokenLookup is a comma separated list of "<source>:<name>" pairs used
	// to extract the token from the request. Sources are tried in order.
	// Optional. Default value "header:Authorization,query:token".
	// Possible values:
	// - "header:<name>"
	// - "query:<name>"
	// - "cookie:<name>"
	TokenLookup string
}

// Skipper defines a function to skip middleware
type Skipper func(c echo.Context) bool

// AuthErrorHandler defines a function which is executed for an invalid token
type AuthErrorHandler func(error) error

// AuthSuccessHandler defines a function which is executed for a valid token
type AuthSuccessHandler func(c echo.Context)

// DefaultSkipper returns false which processes the middleware
func DefaultSkipper(echo.Context) bool {
	return false
}

// DefaultAuthErrorHandler is the default error handler
func DefaultAuthErrorHandler(err error) error {
	if he, ok := err.(*echo.HTTPError); ok {
		return he
	}
	return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
}

// DefaultAuthSuccessHandler is the default success handler (no-op)
func DefaultAuthSuccessHandler(echo.Context) {}

// DefaultAuthConfig is the default auth middleware config. Browsers cannot
// set headers on WebSocket upgrades, so the query parameter is accepted too.
var DefaultAuthConfig = AuthConfig{
	Skipper:        DefaultSkipper,
	ErrorHandler:   DefaultAuthErrorHandler,
	SuccessHandler: DefaultAuthSuccessHandler,
	TokenLookup:    "header:Authorization,query:token",
}

// JWT returns a JWT auth middleware. A nil manager disables authentication.
func JWT(jwtManager *auth.JWTManager) echo.MiddlewareFunc {
	if jwtManager == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	c := DefaultAuthConfig
	c.JWTManager = jwtManager
	return JWTWithConfig(c)
}

// JWTWithConfig returns a JWT auth middleware with config
func JWTWithConfig(config AuthConfig) echo.MiddlewareFunc {
	// Defaults
	if config.Skipper == nil {
		config.Skipper = DefaultAuthConfig.Skipper
	}
	if config.ErrorHandler == nil {
		config.ErrorHandler = DefaultAuthConfig.ErrorHandler
	}
	if config.SuccessHandler == nil {
		config.SuccessHandler = DefaultAuthConfig.SuccessHandler
	}
	if config.TokenLookup == "" {
		config.TokenLookup = DefaultAuthConfig.TokenLookup
	}
	if config.JWTManager == nil {
		panic("JWT manager is required")
	}

	extractors := make([]tokenExtractor, 0, 2)
	for _, lookup := range strings.Split(config.TokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(lookup), ":", 2)
		if len(parts) != 2 {
			panic("invalid token lookup: " + lookup)
		}
		switch parts[0] {
		case "query":
			extractors = append(extractors, jwtFromQuery(parts[1]))
		case "cookie":
			extractors = append(extractors, jwtFromCookie(parts[1]))
		default:
			extractors = append(extractors, jwtFromHeader(parts[1]))
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.Skipper(c) {
				return next(c)
			}

			token, err := extractToken(c, extractors)
			if err != nil {
				return config.ErrorHandler(err)
			}

			claims, err := config.JWTManager.ValidateToken(token)
			if err != nil {
				return config.ErrorHandler(err)
			}

			c.Set(claimsContextKey, claims)
			config.SuccessHandler(c)

			return next(c)
		}
	}
}

type tokenExtractor func(echo.Context) (string, error)

// extractToken returns the first token found. A source that is present but
// malformed wins over later sources.
func extractToken(c echo.Context, extractors []tokenExtractor) (string, error) {
	var firstErr error
	for _, extract := range extractors {
		token, err := extract(c)
		if err == nil {
			return token, nil
		}
		if !isMissing(err) {
			return "", err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return "", firstErr
}

type missingTokenError struct{ msg string }

func (e *missingTokenError) Error() string { return e.msg }

func isMissing(err error) bool {
	_, ok := err.(*missingTokenError)
	return ok
}

// jwtFromHeader returns a function that extracts token from the request header
func jwtFromHeader(header string) tokenExtractor {
	return func(c echo.Context) (string, error) {
		authHeader := c.Request().Header.Get(header)
		if authHeader == "" {
			return "", &missingTokenError{"missing or empty authorization header"}
		}
		return auth.ExtractTokenFromHeader(authHeader)
	}
}

// jwtFromQuery returns a function that extracts token from the query string
func jwtFromQuery(param string) tokenExtractor {
	return func(c echo.Context) (string, error) {
		token := c.QueryParam(param)
		if token == "" {
			return "", &missingTokenError{"missing token in query parameter"}
		}
		return token, nil
	}
}

// jwtFromCookie returns a function that extracts token from a cookie
func jwtFromCookie(name string) tokenExtractor {
	return func(c echo.Context) (string, error) {
		cookie, err := c.Cookie(name)
		if err != nil || cookie.Value == "" {
			return "", &missingTokenError{"missing token in cookie"}
		}
		return cookie.Value, nil
	}
}

// GetClaimsFromContext extracts operator claims from the echo context
func GetClaimsFromContext(c echo.Context) *auth.Claims {
	claims, ok := c.Get(claimsContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// Operator returns the subject of the authenticated operator, or "anonymous"
// when authentication is disabled
func Operator(c echo.Context) string {
	if claims := GetClaimsFromContext(c); claims != nil {
		return claims.Subject
	}
	return "anonymous"
}

// IsAuthenticated checks if the current request is authenticated
func IsAuthenticated(c echo.Context) bool {
	return GetClaimsFromContext(c) != nil
}
