package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/mohammad-safakhou/agora/config"
)

const sessionTTL = 7 * 24 * time.Hour

type authHandler struct {
	Secret       []byte
	adminEmail   string
	passwordHash []byte
}

func newAuthHandler(cfg config.ServerConfig) (*authHandler, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("server.jwt_secret is required")
	}
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil, fmt.Errorf("server.admin_email and server.admin_password are required")
	}
	hash := []byte(cfg.AdminPassword)
	if !strings.HasPrefix(cfg.AdminPassword, "$2") {
		h, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hashing admin password: %w", err)
		}
		hash = h
	}
	return &authHandler{
		Secret:       []byte(cfg.JWTSecret),
		adminEmail:   cfg.AdminEmail,
		passwordHash: hash,
	}, nil
}

func (h *authHandler) Register(g *echo.Group) {
	g.POST("/login", h.login)
	g.POST("/logout", h.logout)
}

// SignJWT mints a session token for the given subject.
func SignJWT(secret []byte, subject string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func (h *authHandler) login(c echo.Context) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email != h.adminEmail ||
		bcrypt.CompareHashAndPassword(h.passwordHash, []byte(req.Password)) != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	token, err := SignJWT(h.Secret, req.Email, sessionTTL)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "sign token")
	}
	c.SetCookie(&http.Cookie{
		Name:     "agora_session",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(sessionTTL),
	})
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}

func (h *authHandler) logout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     "agora_session",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	return c.NoContent(http.StatusNoContent)
}

// withAuth protects a route group with JWT checks. The token can come from
// an Authorization bearer header or the session cookie.
func withAuth(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := ""
			if ah := c.Request().Header.Get("Authorization"); strings.HasPrefix(ah, "Bearer ") {
				raw = strings.TrimPrefix(ah, "Bearer ")
			} else if ck, err := c.Cookie("agora_session"); err == nil {
				raw = ck.Value
			}
			if raw == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
			}
			token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims, ok := token.Claims.(jwt.MapClaims); ok {
				if sub, _ := claims["sub"].(string); sub != "" {
					c.Set("user", sub)
				}
			}
			return next(c)
		}
	}
}
