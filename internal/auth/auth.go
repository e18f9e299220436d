// internal/auth/auth.go

package auth

import (
	"errors"
	"time"

	"github.com/dgrijalva/jwt-go"
	"golang.org/x/crypto/bcrypt"
)

// JWTSecret holds the signing key (set by Init).
var JWTSecret []byte

// TokenTTL is how long issued tokens stay valid.
var TokenTTL = 24 * time.Hour

// Init caches the signing key and token lifetime. A zero ttl keeps the
// 24 hour default.
func Init(secret string, ttl time.Duration) {
	JWTSecret = []byte(secret)
	if ttl > 0 {
		TokenTTL = ttl
	}
}

// Claims defines the JWT payload for our admin users.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.StandardClaims
}

// GenerateJWT creates a signed token valid for TokenTTL.
func GenerateJWT(userID, username, role string) (string, error) {
	if len(JWTSecret) == 0 {
		return "", errors.New("auth: signing key is not configured")
	}
	now := time.Now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(TokenTTL).Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(JWTSecret)
}

// ParseAndVerify validates the token string and returns its claims.
// Tokens without an expiry are rejected.
func ParseAndVerify(tokenStr string) (*Claims, error) {
	if len(JWTSecret) == 0 {
		return nil, errors.New("auth: signing key is not configured")
	}
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// ensure HS256
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return JWTSecret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.ExpiresAt == 0 {
		return nil, errors.New("token has no expiry")
	}
	return claims, nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
