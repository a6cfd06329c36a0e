package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters, per the OWASP password storage guidance.
const (
	argonIterations  = 3
	argonMemoryKiB   = 64 * 1024
	argonParallelism = 1
	argonKeyLen      = 32
	argonSaltLen     = 16
)

// phcFieldCount is the number of $-delimited fields in a PHC string.
const phcFieldCount = 6

var errMalformedHash = errors.New("auth: malformed password hash")

// HashPassword derives an Argon2id hash of the plaintext and encodes it
// as a PHC string ($argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>), so
// the parameters travel with the hash and can be tightened later
// without invalidating stored credentials.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, argonIterations, argonMemoryKiB, argonParallelism, argonKeyLen)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemoryKiB, argonIterations, argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// VerifyPassword reports whether the plaintext matches the stored PHC
// hash, re-deriving with the parameters recorded in the hash itself.
// The comparison is constant time.
func VerifyPassword(password, encodedHash string) (bool, error) {
	salt, want, p, err := parsePasswordHash(encodedHash)
	if err != nil {
		return false, err
	}

	got := argon2.IDKey([]byte(password), salt, p.iterations, p.memoryKiB, p.parallelism, uint32(len(want))) //nolint:gosec // G115: hash length always fits uint32

	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

type hashParams struct {
	iterations  uint32
	memoryKiB   uint32
	parallelism uint8
}

// parsePasswordHash splits an Argon2id PHC string into salt, derived
// key, and the derivation parameters.
func parsePasswordHash(encoded string) ([]byte, []byte, hashParams, error) {
	var p hashParams

	fields := strings.Split(encoded, "$")
	if len(fields) != phcFieldCount {
		return nil, nil, p, errMalformedHash
	}
	if fields[1] != "argon2id" {
		return nil, nil, p, fmt.Errorf("%w: unsupported algorithm %q", errMalformedHash, fields[1])
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, p, fmt.Errorf("%w: bad version field", errMalformedHash)
	}
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d", &p.memoryKiB, &p.iterations, &p.parallelism); err != nil { //nolint:govet // shadow: err re-declared in nested scope
		return nil, nil, p, fmt.Errorf("%w: bad parameter field", errMalformedHash)
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[4])
	if err != nil {
		return nil, nil, p, fmt.Errorf("%w: decoding salt: %w", errMalformedHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(fields[5])
	if err != nil {
		return nil, nil, p, fmt.Errorf("%w: decoding hash: %w", errMalformedHash, err)
	}

	return salt, key, p, nil
}
