package utils

import (
	"testing"
)

func TestHashPassword(t *testing.T) {
	password := "secret"
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if !CheckPassword(password, hash) {
		t.Errorf("Expected password check to pass")
	}

	if CheckPassword("wrongpassword", hash) {
		t.Errorf("Expected password check to fail")
	}
}

func TestJWT(t *testing.T) {
	secret := "supersecret"
	userID := "123"
	role := "client"

	token, err := GenerateToken(userID, role, secret)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	claims, err := ValidateToken(token, secret)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if claims.UserID != userID {
		t.Errorf("Expected UserID %s, got %s", userID, claims.UserID)
	}

	if claims.Role != role {
		t.Errorf("Expected Role %s, got %s", role, claims.Role)
	}

	_, err = ValidateToken(token, "wrongsecret")
	if err == nil {
		t.Errorf("Expected error with wrong secret")
	}
}

func TestJoinToken(t *testing.T) {
	secret := "supersecret"

	token, err := GenerateJoinToken(31, "room-1", 42, secret)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	claims, err := ValidateJoinToken(token, secret)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if claims.SessionID != 31 {
		t.Errorf("Expected SessionID 31, got %d", claims.SessionID)
	}
	if claims.RoomID != "room-1" {
		t.Errorf("Expected RoomID room-1, got %s", claims.RoomID)
	}
	if claims.UserID != "42" {
		t.Errorf("Expected UserID 42, got %s", claims.UserID)
	}

	_, err = ValidateJoinToken(token, "wrongsecret")
	if err == nil {
		t.Errorf("Expected error with wrong secret")
	}

	_, err = ValidateJoinToken("not-a-token", secret)
	if err == nil {
		t.Errorf("Expected error for malformed token")
	}
}
