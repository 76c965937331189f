package utils

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JoinClaims is the signed join credential for a session room. The token
// itself carries no expiry; it stays valid until the session explicitly
// expires its link record.
type JoinClaims struct {
	SessionID int64  `json:"session_id"`
	RoomID    string `json:"room_id"`
	UserID    string `json:"user_id"`
	jwt.RegisteredClaims
}

func GenerateJoinToken(sessionID int64, roomID string, userID int64, secret string) (string, error) {
	claims := JoinClaims{
		SessionID: sessionID,
		RoomID:    roomID,
		UserID:    strconv.FormatInt(userID, 10),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateJoinToken(tokenString, secret string) (*JoinClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JoinClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*JoinClaims)
	if !ok || !token.Valid || claims.RoomID == "" || claims.SessionID <= 0 {
		return nil, errors.New("invalid join token")
	}
	return claims, nil
}
