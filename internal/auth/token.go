// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/argon2"
)

// Argon2 parameters (OWASP recommended second choice: m=19456, t=2, p=1)
const (
	Argon2Time    = 2
	Argon2Memory  = 19 * 1024
	Argon2Threads = 1
	Argon2KeyLen  = 32
	Argon2SaltLen = 16
)

const argon2Prefix = "$argon2id$"

// ErrInvalidHash is returned for malformed encoded hashes.
var ErrInvalidHash = errors.New("invalid argon2id hash")

// IsHashed reports whether s looks like an encoded argon2id hash.
func IsHashed(s string) bool {
	return strings.HasPrefix(s, argon2Prefix)
}

// HashToken creates an Argon2id hash of the token.
// Returns encoded hash in format: $argon2id$v=19$m=19456,t=2,p=1$salt$hash
func HashToken(token string) (string, error) {
	salt := make([]byte, Argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(token), salt, Argon2Time, Argon2Memory, Argon2Threads, Argon2KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, Argon2Memory, Argon2Time, Argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// VerifyHash checks a token against an encoded Argon2id hash in constant time.
func VerifyHash(token, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, fmt.Errorf("parsing version: %w", err)
	}

	var memory, timeCost uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &threads); err != nil {
		return false, fmt.Errorf("parsing parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("decoding salt: %w", err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, fmt.Errorf("decoding hash: %w", err)
	}

	hash := argon2.IDKey([]byte(token), salt, timeCost, memory, threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(hash, expected) == 1, nil
}

// TokenVerifier checks admin bearer tokens against a configured secret, which
// is either the token itself or its argon2id hash. Hash verifications that
// succeed are remembered so the KDF runs once per distinct token.
type TokenVerifier struct {
	secret   string
	hashed   bool
	verified *lru.Cache[[sha256.Size]byte, struct{}]
}

// NewTokenVerifier creates a verifier for the given secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	verified, _ := lru.New[[sha256.Size]byte, struct{}](64)
	return &TokenVerifier{
		secret:   secret,
		hashed:   IsHashed(secret),
		verified: verified,
	}
}

// Verify reports whether token matches the configured secret.
func (v *TokenVerifier) Verify(token string) bool {
	if token == "" || v.secret == "" {
		return false
	}
	if !v.hashed {
		return subtle.ConstantTimeCompare([]byte(token), []byte(v.secret)) == 1
	}

	digest := sha256.Sum256([]byte(token))
	if v.verified.Contains(digest) {
		return true
	}
	ok, err := VerifyHash(token, v.secret)
	if err != nil || !ok {
		return false
	}
	v.verified.Add(digest, struct{}{})
	return true
}
