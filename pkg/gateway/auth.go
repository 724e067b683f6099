package gateway

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const maxAuthAttempts = 3

// AuthHandler runs HMAC challenge-response authentication. Without a
// shared secret every client is trusted; the gateway then binds loopback
// only.
type AuthHandler struct {
	sharedSecret string
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(sharedSecret string) *AuthHandler {
	return &AuthHandler{sharedSecret: sharedSecret}
}

// Required reports whether clients must authenticate
func (a *AuthHandler) Required() bool {
	return a.sharedSecret != ""
}

// GenerateChallenge generates a random 32-byte challenge as hex
func (a *AuthHandler) GenerateChallenge() (string, error) {
	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return "", fmt.Errorf("failed to generate challenge: %w", err)
	}
	return hex.EncodeToString(challenge), nil
}

// Sign returns the expected signature for challenge
func (a *AuthHandler) Sign(challenge string) string {
	h := hmac.New(sha256.New, []byte(a.sharedSecret))
	h.Write([]byte(challenge))
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks an HMAC-SHA256 signature in constant time
func (a *AuthHandler) VerifySignature(challenge, signature string) bool {
	return subtle.ConstantTimeCompare([]byte(a.Sign(challenge)), []byte(signature)) == 1
}

// VerifySecret compares a presented secret with the shared secret in
// constant time
func (a *AuthHandler) VerifySecret(secret string) bool {
	return subtle.ConstantTimeCompare([]byte(a.sharedSecret), []byte(secret)) == 1
}

// HandleAuthResponse verifies a client's signature and updates its state
func (a *AuthHandler) HandleAuthResponse(client *Client, signature string) AuthResult {
	if client.Challenge == "" {
		return AuthResult{Event: "auth.failure", Message: "No challenge found"}
	}

	if !a.VerifySignature(client.Challenge, signature) {
		client.AuthAttempts++
		if client.AuthAttempts >= maxAuthAttempts {
			return AuthResult{Event: "auth.failure", Message: "Too many failed attempts"}
		}
		return AuthResult{Event: "auth.failure", Message: "Invalid signature"}
	}

	client.markAuthenticated()
	client.AuthAttempts = 0
	client.Challenge = ""

	return AuthResult{Event: "auth.success", Success: true, ClientID: client.ID}
}
