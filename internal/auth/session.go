// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/loteria-live/loteria/internal/models"
)

// privateKey and publicKey are used for signing and verifying JWT tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// TOKEN_EXPIRE_TIME_SEC indicates how many seconds until JWT expiration (0 => never).
	TOKEN_EXPIRE_TIME_SEC int
)

// parseTokenExpireTime reads the TOKEN_EXPIRE_TIME env var and sets TOKEN_EXPIRE_TIME_SEC accordingly.
func parseTokenExpireTime() {
	duration := os.Getenv("TOKEN_EXPIRE_TIME")
	if duration == "never" || duration == "0" || duration == "" {
		TOKEN_EXPIRE_TIME_SEC = 0
	} else {
		d, err := time.ParseDuration(duration)
		if err != nil {
			fmt.Printf("failed to parse token expire time: %v\n", err)
			os.Exit(1)
		}
		TOKEN_EXPIRE_TIME_SEC = int(d.Seconds())
	}
}

// Init generates a fresh ed25519 key pair at runtime and sets the token expiration.
func Init() {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		fmt.Printf("failed to generate ed25519 key pair: %v\n", err)
		os.Exit(1)
	}
	parseTokenExpireTime()
}

// InitFromPath reads ed25519 private/public keys from file and sets the token expiration.
func InitFromPath(privatePath, publicPath string) error {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}

	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	parseTokenExpireTime()
	return nil
}

// CreateJWT creates a signed JWT carrying the player's identity claims
// (name, avatar, email), with exp set by TOKEN_EXPIRE_TIME_SEC when nonzero.
func CreateJWT(ident models.Identity) (string, error) {
	claims := jwt.MapClaims{
		"name":   ident.Name,
		"avatar": ident.Avatar,
		"email":  ident.Email,
	}

	if TOKEN_EXPIRE_TIME_SEC > 0 {
		claims["exp"] = time.Now().Add(time.Duration(TOKEN_EXPIRE_TIME_SEC) * time.Second).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateJWT verifies a JWT string and returns the identity claims it
// carries, else an error.
func AuthenticateJWT(tokenString string) (models.Identity, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})

	if err != nil {
		return models.Identity{}, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return models.Identity{}, fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return models.Identity{}, fmt.Errorf("invalid jwt claims")
	}

	ident := models.Identity{}
	if v, ok := claims["name"].(string); ok {
		ident.Name = v
	}
	if v, ok := claims["avatar"].(string); ok {
		ident.Avatar = v
	}
	if v, ok := claims["email"].(string); ok {
		ident.Email = v
	}
	if ident.Name == "" && ident.Email == "" {
		return models.Identity{}, fmt.Errorf("missing identity claims in jwt")
	}
	return ident, nil
}

// ResolveIdentity derives the player identity for a request: a valid JWT
// (Authorization bearer or auth_token cookie) wins, query parameters fill the
// gaps, and a missing name falls back to a generated guest name. The zero
// email marks the player as anonymous, which disables email-based
// reconnection matching.
func ResolveIdentity(r *http.Request) models.Identity {
	var ident models.Identity

	if token := bearerToken(r); token != "" {
		if claimed, err := AuthenticateJWT(token); err == nil {
			ident = claimed
		}
	}

	q := r.URL.Query()
	if ident.Name == "" {
		ident.Name = q.Get("playerName")
	}
	if ident.Avatar == "" {
		ident.Avatar = q.Get("playerAvatar")
	}
	if ident.Name == "" {
		ident.Name = GuestName()
	}
	return ident
}

// GuestName generates a display name for players who provided none.
func GuestName() string {
	millis := fmt.Sprintf("%d", time.Now().UnixMilli())
	return "Invitado" + millis[len(millis)-4:]
}

// bearerToken extracts a JWT from the Authorization header or the auth_token cookie.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie("auth_token"); err == nil {
		return c.Value
	}
	return ""
}
