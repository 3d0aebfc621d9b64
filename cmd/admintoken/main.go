// Command admintoken signs a bearer token for the engine's HTTP API using
// JWT_SECRET_KEY from the environment or a .env file.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Dosada05/tournament-engine/config"
	"github.com/Dosada05/tournament-engine/middleware"
	"github.com/golang-jwt/jwt/v4"
)

var errInvalidUserID = errors.New("user id must be positive")

func main() {
	userID := flag.Int("user", 0, "user id to put in the token")
	role := flag.String("role", string(middleware.RoleAdmin), "role claim: admin or player")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	secret, err := config.LoadJWTSecret()
	if err != nil {
		logger.Error("failed to load signing key", slog.Any("error", err))
		os.Exit(1)
	}

	token, err := mintToken([]byte(secret), *userID, middleware.Role(*role), *ttl, time.Now())
	if err != nil {
		logger.Error("failed to sign token", slog.Any("error", err))
		os.Exit(1)
	}
	fmt.Println(token)
}

func mintToken(secret []byte, userID int, role middleware.Role, ttl time.Duration, now time.Time) (string, error) {
	if userID <= 0 {
		return "", errInvalidUserID
	}
	switch role {
	case middleware.RoleAdmin, middleware.RolePlayer:
	default:
		return "", fmt.Errorf("unknown role %q", role)
	}

	claims := jwt.MapClaims{"iat": now.Unix()}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}
	return middleware.SignToken(secret, userID, role, claims)
}
