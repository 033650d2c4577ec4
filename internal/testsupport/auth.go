package testsupport

import (
	"testing"

	"fitstogo/internal/auth"
	"fitstogo/internal/config"
)

// MintToken signs a bearer token for userID with the config's secret.
func MintToken(t testing.TB, cfg *config.Config, userID, email string) string {
	t.Helper()
	verifier, err := auth.NewVerifier(cfg.Auth)
	if err != nil {
		t.Fatalf("auth.NewVerifier: %v", err)
	}
	token, err := verifier.Mint(auth.Identity{UserID: userID, Email: email}, 0)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}
