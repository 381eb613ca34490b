package middleware

import (
	"net/http"
	"strings"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"studio_booking_echo/internal/config"
	"studio_booking_echo/internal/models"
)

const (
	ContextUserUID = "userUID"
	ContextUser    = "user"
)

// RequireAuth returns a middleware that verifies Firebase bearer ID tokens.
func RequireAuth(authClient *auth.Client) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if authClient == nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "authentication is not configured")
			}

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}

			decodedToken, err := authClient.VerifyIDToken(c.Request().Context(), token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(ContextUserUID, decodedToken.UID)
			if name, ok := decodedToken.Claims["name"].(string); ok {
				c.Set("userName", name)
			}

			return next(c)
		}
	}
}

// LoadUser resolves the authenticated UID to a local user row, creating it on
// first contact, and touches last_activity. Every authenticated request
// counts as activity for the inactivity nudge.
func LoadUser(db *gorm.DB) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid, _ := c.Get(ContextUserUID).(string)
			if uid == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing user identity")
			}

			now := time.Now()
			var user models.User
			err := db.Where("platform_id = ?", uid).First(&user).Error
			if err == gorm.ErrRecordNotFound {
				user = models.User{PlatformID: uid, LastActivity: now}
				if name, ok := c.Get("userName").(string); ok {
					user.FullName = name
				}
				if err := db.Create(&user).Error; err != nil {
					return err
				}
			} else if err != nil {
				return err
			} else {
				db.Model(&user).UpdateColumn("last_activity", now)
				user.LastActivity = now
			}

			c.Set(ContextUser, &user)
			return next(c)
		}
	}
}

// RequireAdmin allows only UIDs in the configured admin allowlist.
func RequireAdmin(cfg *config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid, _ := c.Get(ContextUserUID).(string)
			if !cfg.IsAdmin(uid) {
				return echo.NewHTTPError(http.StatusForbidden, "admin access required")
			}
			return next(c)
		}
	}
}

// UserFrom extracts the loaded user from the request context.
func UserFrom(c echo.Context) *models.User {
	user, _ := c.Get(ContextUser).(*models.User)
	return user
}
