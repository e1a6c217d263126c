package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/kapu/modeltrans-go/internal/constants"
	"github.com/kapu/modeltrans-go/internal/lang"
)

var (
	// LangParam selects the response language for one request and persists
	// the choice as a cookie.
	LangParam = constants.LanguageConfig.QueryParam
	// LangCookieName stores the client's language preference.
	LangCookieName = constants.LanguageConfig.CookieName
)

// Language resolves the active language for every request: `?lang=` query
// param, then the language cookie, then Accept-Language, then the configured
// default. The result is always an allow-list member; it lands on the request
// context and in the Content-Language header.
func Language(resolver *lang.Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			code, persist := resolveLanguage(c, resolver)

			ctx := resolver.WithActive(c.Request().Context(), code)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Response().Header().Set("Content-Language", code)

			if persist {
				c.SetCookie(&http.Cookie{
					Name:     LangCookieName,
					Value:    code,
					Path:     "/",
					MaxAge:   int(constants.LanguageConfig.CookieMaxAge.Seconds()),
					SameSite: http.SameSiteLaxMode,
				})
			}

			return next(c)
		}
	}
}

func resolveLanguage(c echo.Context, resolver *lang.Resolver) (string, bool) {
	if v := strings.TrimSpace(c.QueryParam(LangParam)); v != "" {
		if code, ok := resolver.Normalize(v); ok {
			return code, true
		}
	}

	if cookie, err := c.Cookie(LangCookieName); err == nil {
		if code, ok := resolver.Normalize(cookie.Value); ok {
			return code, false
		}
	}

	if accept := strings.TrimSpace(c.Request().Header.Get("Accept-Language")); accept != "" {
		return resolver.Match(accept), false
	}

	return resolver.Default(), false
}

// RequestLogger logs every request with zap, levelled by status class.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", res.Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote_ip", c.RealIP()),
				zap.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
			}

			switch {
			case res.Status >= 500:
				logger.Error("HTTP request", fields...)
			case res.Status >= 400:
				logger.Warn("HTTP request", fields...)
			default:
				logger.Debug("HTTP request", fields...)
			}

			return nil
		}
	}
}

// AdminOnly guards an endpoint with the configured admin token, accepted as
// a bearer token or an X-Admin-Token header. An empty configured token
// disables the endpoint entirely.
func AdminOnly(token string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if token == "" {
				return c.JSON(http.StatusForbidden, errorResponse{Error: "admin token not configured"})
			}

			provided := ""
			if auth := c.Request().Header.Get(echo.HeaderAuthorization); auth != "" {
				parts := strings.SplitN(auth, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
					provided = parts[1]
				}
			}
			if provided == "" {
				provided = c.Request().Header.Get("X-Admin-Token")
			}

			if provided != token {
				return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid admin token"})
			}

			return next(c)
		}
	}
}
