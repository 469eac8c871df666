package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func testConfig() Config {
	return Config{
		TokenKey:          []byte("test-secret-key-32-bytes-long!!!"),
		TokenExpiry:       time.Hour,
		MinUsernameLength: 4,
		MinPasswordLength: 6,
	}
}

func TestNew_DefaultValues(t *testing.T) {
	a := New(Config{})

	if a.config.TokenExpiry != 14*24*time.Hour {
		t.Errorf("expected default TokenExpiry 2 weeks, got %v", a.config.TokenExpiry)
	}
	if a.config.MinUsernameLength != 4 {
		t.Errorf("expected default MinUsernameLength 4, got %d", a.config.MinUsernameLength)
	}
	if a.config.MinPasswordLength != 6 {
		t.Errorf("expected default MinPasswordLength 6, got %d", a.config.MinPasswordLength)
	}
}

func TestHashPassword_Format(t *testing.T) {
	a := New(testConfig())

	hash, err := a.HashPassword("flashcards-are-fun")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if len(hash) < 10 || hash[:9] != "$argon2id" {
		t.Errorf("hash should start with $argon2id$, got: %s", hash)
	}
	if parts := splitArgon2Hash(hash); len(parts) != 3 {
		t.Errorf("expected 3 parts, got %d", len(parts))
	}
}

func TestHashPassword_DifferentSalts(t *testing.T) {
	a := New(testConfig())

	// Same password should produce different hashes (different salts)
	hash1, _ := a.HashPassword("samepassword")
	hash2, _ := a.HashPassword("samepassword")

	if hash1 == hash2 {
		t.Error("same password should produce different hashes due to random salt")
	}
}

func TestVerifyPassword_RoundTrip(t *testing.T) {
	a := New(testConfig())

	password := "flashcards-are-fun"
	hash, _ := a.HashPassword(password)

	if !a.VerifyPassword(password, hash) {
		t.Error("VerifyPassword should accept the correct password")
	}
	if a.VerifyPassword("wrong-password", hash) {
		t.Error("VerifyPassword should reject a wrong password")
	}
}

func TestVerifyPassword_InvalidFormat(t *testing.T) {
	a := New(testConfig())

	testCases := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"no prefix", "argon2id$salt$hash"},
		{"wrong prefix", "$bcrypt$salt$hash"},
		{"wrong argon variant", "$argon2i$c2FsdA$aGFzaA"},
		{"too few parts", "$argon2id$onlyonepart"},
		{"too short", "$arg"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if a.VerifyPassword("anypassword", tc.hash) {
				t.Errorf("VerifyPassword should reject malformed hash: %s", tc.hash)
			}
		})
	}
}

func TestVerifyPassword_InvalidBase64(t *testing.T) {
	a := New(testConfig())

	if a.VerifyPassword("password", "$argon2id$!!!invalid!!!$validhash") {
		t.Error("VerifyPassword should reject an invalid base64 salt")
	}
	if a.VerifyPassword("password", "$argon2id$dGVzdHNhbHQ$!!!invalid!!!") {
		t.Error("VerifyPassword should reject an invalid base64 hash")
	}
}

func TestSplitArgon2Hash(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected []string
	}{
		{"valid", "$argon2id$salt$hash", []string{"argon2id", "salt", "hash"}},
		{"empty", "", nil},
		{"too short", "$short", nil},
		{"no leading $", "argon2id$salt$hash", nil},
		{"single part too short", "$argon2id", nil},
		{"two parts", "$argon2id$salt", []string{"argon2id", "salt"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := splitArgon2Hash(tc.input)
			if len(result) != len(tc.expected) {
				t.Fatalf("expected %d parts, got %d", len(tc.expected), len(result))
			}
			for i, part := range result {
				if part != tc.expected[i] {
					t.Errorf("part %d: expected %s, got %s", i, tc.expected[i], part)
				}
			}
		})
	}
}

func TestGenerateToken_Success(t *testing.T) {
	a := New(testConfig())
	userID := uuid.New()

	token, expiresAt, err := a.GenerateToken(userID)
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if token == "" {
		t.Error("token should not be empty")
	}

	// ExpiresAt should be about 1 hour from now (our test config)
	expectedExpiry := time.Now().Add(time.Hour)
	if expiresAt.Before(expectedExpiry.Add(-time.Minute)) || expiresAt.After(expectedExpiry.Add(time.Minute)) {
		t.Errorf("expiresAt should be ~1 hour from now, got %v", expiresAt)
	}
}

func TestGenerateToken_IssuerClaim(t *testing.T) {
	a := New(testConfig())

	token, _, err := a.GenerateToken(uuid.New())
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Issuer != "studycircle" {
		t.Errorf("expected issuer studycircle, got %q", claims.Issuer)
	}
}

func TestValidateToken_Success(t *testing.T) {
	a := New(testConfig())
	userID := uuid.New()

	token, _, _ := a.GenerateToken(userID)

	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("expected userID %s, got %s", userID, claims.UserID)
	}
}

func TestValidateToken_ExpiredToken(t *testing.T) {
	// Create auth with an already-elapsed expiry
	a := New(Config{
		TokenKey:    []byte("test-key"),
		TokenExpiry: -time.Hour,
	})

	token, _, _ := a.GenerateToken(uuid.New())

	if _, err := a.ValidateToken(token); err != ErrTokenExpired {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestValidateToken_InvalidToken(t *testing.T) {
	a := New(testConfig())

	testCases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.valid.token"},
		{"malformed", "eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := a.ValidateToken(tc.token); err != ErrInvalidToken {
				t.Errorf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestValidateToken_WrongKey(t *testing.T) {
	a1 := New(Config{TokenKey: []byte("key-one")})
	a2 := New(Config{TokenKey: []byte("key-two")})

	token, _, _ := a1.GenerateToken(uuid.New())

	if _, err := a2.ValidateToken(token); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for wrong key, got %v", err)
	}
}

func TestValidateUsername(t *testing.T) {
	a := New(Config{MinUsernameLength: 4})

	for _, username := range []string{"amira", "studybuddy", "veryseriousstudent"} {
		if err := a.ValidateUsername(username); err != nil {
			t.Errorf("username %q should be valid, got error: %v", username, err)
		}
	}
	for _, username := range []string{"", "a", "ab", "abc"} {
		if err := a.ValidateUsername(username); err != ErrWeakUsername {
			t.Errorf("username %q should be too short, got: %v", username, err)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	a := New(Config{MinPasswordLength: 6})

	for _, password := range []string{"123456", "password", "verylongpassword"} {
		if err := a.ValidatePassword(password); err != nil {
			t.Errorf("password %q should be valid, got error: %v", password, err)
		}
	}
	for _, password := range []string{"", "a", "12345"} {
		if err := a.ValidatePassword(password); err != ErrWeakPassword {
			t.Errorf("password %q should be too short, got: %v", password, err)
		}
	}
}

func TestValidator_ResolvesTokenToUserID(t *testing.T) {
	a := New(testConfig())
	v := NewValidator(a)
	userID := uuid.New()

	token, _, _ := a.GenerateToken(userID)

	resultID, err := v.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if resultID != userID {
		t.Errorf("expected userID %s, got %s", userID, resultID)
	}
}

func TestValidator_RejectsInvalidToken(t *testing.T) {
	v := NewValidator(New(testConfig()))

	if _, err := v.ValidateToken("invalid-token"); err == nil {
		t.Error("expected error for invalid token")
	}
}
