package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/approvalflow/approval-gateway/internal"
)

// CookieManager issues and verifies the browser session cookie. The cookie
// carries only a signed session ID; tokens and the user snapshot never
// leave the server.
type CookieManager struct {
	secret []byte
	name   string
	ttl    time.Duration
	secure bool
}

func NewCookieManager(cfg internal.SecurityConfig) *CookieManager {
	return &CookieManager{
		secret: []byte(cfg.SessionSecret),
		name:   cfg.CookieName,
		ttl:    cfg.CookieTTL,
		secure: cfg.CookieSecure,
	}
}

func (cm *CookieManager) Issue(w http.ResponseWriter, sessionID string) error {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(cm.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(cm.secret)
	if err != nil {
		return fmt.Errorf("sign session cookie: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cm.name,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(cm.ttl.Seconds()),
		HttpOnly: true,
		Secure:   cm.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (cm *CookieManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cm.name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cm.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionID extracts and verifies the session ID from the request cookie.
// Returns false for a missing, malformed, expired, or tampered cookie.
func (cm *CookieManager) SessionID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(cm.name)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	token, err := jwt.ParseWithClaims(cookie.Value, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return cm.secret, nil
	})
	if err != nil || !token.Valid {
		return "", false
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}
