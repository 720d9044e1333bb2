package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

// InitConfig writes a sample configuration file to the default location.
// Returns the path the file was written to.
func InitConfig(force bool) (string, error) {
	return InitConfigToPath(GetDefaultConfigPath(), force)
}

// InitConfigToPath writes a sample configuration file to the given path.
// It refuses to overwrite an existing file unless force is true.
func InitConfigToPath(path string, force bool) (string, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
		}
	}

	secret, err := randomHex(32)
	if err != nil {
		return "", fmt.Errorf("failed to generate admin JWT secret: %w", err)
	}

	cfg := GetDefaultConfig()
	cfg.Admin.JWTSecret = secret

	if err := SaveConfig(cfg, path); err != nil {
		return "", err
	}

	return path, nil
}

// randomHex returns a hex-encoded string of n random bytes.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
