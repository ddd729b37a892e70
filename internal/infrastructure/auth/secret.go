package auth

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
)

const secretFileName = "jwt_secret"

// LoadOrGenerateSecret resolves the platform's JWT signing secret: the
// JWT_SECRET environment variable wins if set; otherwise a non-empty
// configValue is used; otherwise a previously generated secret is read
// from "<dataDir>/jwt_secret"; if none of these exists, a 64-char secret
// is generated and persisted there with mode
// 0600 so only the owning user can read it back.
func LoadOrGenerateSecret(dataDir, configValue string) (string, error) {
	if env := os.Getenv("JWT_SECRET"); env != "" {
		return env, nil
	}
	if configValue != "" {
		return configValue, nil
	}

	path := filepath.Join(dataDir, secretFileName)
	if data, err := os.ReadFile(path); err == nil {
		return string(data), nil
	}

	secret, err := randomHexSecret(32) // 32 bytes -> 64 hex chars
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(secret), 0o600); err != nil {
		return "", err
	}
	return secret, nil
}

func randomHexSecret(numBytes int) (string, error) {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
