// internal/auth/token.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// privateKey and publicKey sign and verify the ephemeral player tokens handed
// out on room create/join. Keys are generated fresh at startup: tokens are
// only meaningful to the process that minted them, which matches the
// single-authority in-memory room model.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenExpireSec is how many seconds until token expiration (0 => never).
	tokenExpireSec int
)

// Init generates a fresh ed25519 key pair and reads TOKEN_EXPIRE_TIME
// ("never", "0" or a Go duration string).
func Init() {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		fmt.Printf("failed to generate ed25519 key pair: %v\n", err)
		os.Exit(1)
	}

	duration := os.Getenv("TOKEN_EXPIRE_TIME")
	if duration == "never" || duration == "0" || duration == "" {
		tokenExpireSec = 0
	} else {
		d, err := time.ParseDuration(duration)
		if err != nil {
			fmt.Printf("failed to parse token expire time: %v\n", err)
			os.Exit(1)
		}
		tokenExpireSec = int(d.Seconds())
	}
}

// CreatePlayerToken signs a JWT with "sub" = playerID and "room" = roomID.
func CreatePlayerToken(playerID, roomID string) (string, error) {
	claims := jwt.MapClaims{
		"sub":  playerID,
		"room": roomID,
	}
	if tokenExpireSec > 0 {
		claims["exp"] = time.Now().Add(time.Duration(tokenExpireSec) * time.Second).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// VerifyPlayerToken checks the signature and returns the player id and room
// id the token was minted for.
func VerifyPlayerToken(tokenString string) (playerID, roomID string, err error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return "", "", fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return "", "", fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", fmt.Errorf("invalid jwt claims")
	}
	playerID, ok = claims["sub"].(string)
	if !ok {
		return "", "", fmt.Errorf("missing sub in jwt")
	}
	roomID, _ = claims["room"].(string)
	return playerID, roomID, nil
}
