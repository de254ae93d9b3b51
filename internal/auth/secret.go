// secret.go

// Admin shared-secret verification, plain or Argon2id-hashed.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argonSaltLen = 16
	argonTime    = uint32(3)
	argonMemory  = uint32(64 * 1024)
	argonThreads = uint8(2)
	argonKeyLen  = uint32(32)
)

// AdminSecret checks the bearer secret presented on admin routes.
// Exactly one of the plain digest or the Argon2id hash is set.
type AdminSecret struct {
	digest []byte // sha256 of the plain secret
	hash   *phcHash
}

// NewAdminSecret builds a verifier from ADMIN_SECRET or ADMIN_SECRET_HASH.
// Passing both, or neither, is an error.
func NewAdminSecret(plain, encodedHash string) (*AdminSecret, error) {
	switch {
	case plain != "" && encodedHash != "":
		return nil, errors.New("admin secret: set either a plain secret or a hash, not both")
	case encodedHash != "":
		h, err := parsePHC(encodedHash)
		if err != nil {
			return nil, fmt.Errorf("admin secret hash: %w", err)
		}
		return &AdminSecret{hash: h}, nil
	case plain != "":
		d := sha256.Sum256([]byte(plain))
		return &AdminSecret{digest: d[:]}, nil
	}
	return nil, errors.New("admin secret: not configured")
}

// Verify reports whether presented matches. Both paths compare in constant time;
// the plain path hashes first so length differences don't leak either.
func (a *AdminSecret) Verify(presented string) bool {
	if a == nil || presented == "" {
		return false
	}
	if a.hash != nil {
		return a.hash.matches(presented)
	}
	d := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(d[:], a.digest) == 1
}

// HashSecret returns PHC-formatted Argon2id hash of secret.
// Format: $argon2id$v=19$m=65536,t=3,p=2$<base64 salt>$<base64 hash>
func HashSecret(secret string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// phcHash is a decoded $argon2id$ string.
type phcHash struct {
	memory, time uint32
	threads      uint8
	salt, key    []byte
}

func parsePHC(encodedHash string) (*phcHash, error) {
	// Format: $argon2id$v=19$m=65536,t=3,p=2$<base64 salt>$<base64 hash>
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return nil, fmt.Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return nil, fmt.Errorf("unsupported algorithm")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, fmt.Errorf("parsing hash version: %w", err)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("unsupported argon2 version: %d", version)
	}

	var h phcHash
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.memory, &h.time, &h.threads); err != nil {
		return nil, fmt.Errorf("parsing hash params: %w", err)
	}
	// argon2.IDKey panics on zero time or threads.
	if h.time < 1 || h.threads < 1 {
		return nil, fmt.Errorf("hash params out of range: t=%d p=%d", h.time, h.threads)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("decoding salt: %w", err)
	}
	if len(h.salt) == 0 {
		return nil, fmt.Errorf("empty salt")
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("decoding hash: %w", err)
	}
	if len(h.key) == 0 {
		return nil, fmt.Errorf("empty hash")
	}
	return &h, nil
}

func (h *phcHash) matches(secret string) bool {
	derived := argon2.IDKey([]byte(secret), h.salt, h.time, h.memory, h.threads, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(derived, h.key) == 1
}
