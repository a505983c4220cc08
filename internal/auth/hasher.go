// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2id output layout. Cost parameters live in HasherConfig.
const (
	argon2SaltLen = 16
	argon2KeyLen  = 32
)

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code(CodeValidation).Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted one-way encoding of the password.
	Hash(password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, hash string) (bool, error)

	// NeedsUpgrade reports whether the hash should be recomputed with current settings.
	NeedsUpgrade(hash string) bool
}

// HasherConfig holds argon2id cost parameters.
type HasherConfig struct {
	Time      uint32 `koanf:"time"`
	MemoryKiB uint32 `koanf:"memory_kib"`
	Threads   uint8  `koanf:"threads"`
}

// DefaultHasherConfig returns the OWASP-recommended argon2id parameters.
func DefaultHasherConfig() HasherConfig {
	return HasherConfig{Time: 1, MemoryKiB: 64 * 1024, Threads: 4}
}

// Validate rejects parameters argon2 cannot run with.
func (c HasherConfig) Validate() error {
	if c.Time == 0 {
		return oops.Code(CodeValidation).Errorf("hasher time must be at least 1")
	}
	if c.Threads == 0 {
		return oops.Code(CodeValidation).Errorf("hasher threads must be at least 1")
	}
	if c.MemoryKiB < 8*uint32(c.Threads) {
		return oops.Code(CodeValidation).
			With("memory_kib", c.MemoryKiB).
			With("threads", c.Threads).
			Errorf("hasher memory must be at least 8 KiB per thread")
	}
	return nil
}

// Argon2idHasher implements PasswordHasher using argon2id.
// It also verifies bcrypt hashes imported from older deployments and reports them for upgrade.
type Argon2idHasher struct {
	cfg HasherConfig
}

// NewArgon2idHasher creates a hasher with the given parameters.
func NewArgon2idHasher(cfg HasherConfig) (*Argon2idHasher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Argon2idHasher{cfg: cfg}, nil
}

// Hash produces an argon2id hash of the password in PHC string format.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code(CodeInternal).With("operation", "generate salt").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.cfg.Time, h.cfg.MemoryKiB, h.cfg.Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.cfg.MemoryKiB,
		h.cfg.Time,
		h.cfg.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches an argon2id or legacy bcrypt hash.
func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, invalidHash(err)
		}
	}

	p, err := parseArgon2id(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.threads, uint32(len(p.key))) //nolint:gosec // key length bounded in parseArgon2id
	return subtle.ConstantTimeCompare(computed, p.key) == 1, nil
}

// NeedsUpgrade reports true for bcrypt hashes and for argon2id hashes
// computed with weaker parameters than the current configuration.
func (h *Argon2idHasher) NeedsUpgrade(encodedHash string) bool {
	p, err := parseArgon2id(encodedHash)
	if err != nil {
		return true
	}
	return p.time < h.cfg.Time || p.memory < h.cfg.MemoryKiB || p.threads < h.cfg.Threads
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func parseArgon2id(encoded string) (*argon2Params, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, invalidHash(errors.New("invalid hash format"))
	}
	if parts[1] != "argon2id" {
		return nil, invalidHash(fmt.Errorf("unsupported hash algorithm: %s", parts[1]))
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, invalidHash(err)
	}
	if version != argon2.Version {
		return nil, invalidHash(fmt.Errorf("unsupported argon2 version %d", version))
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, invalidHash(err)
	}
	if time == 0 {
		return nil, invalidHash(errors.New("time parameter must be at least 1"))
	}
	if threads == 0 || threads > 255 {
		return nil, invalidHash(fmt.Errorf("threads value %d out of range", threads))
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, invalidHash(err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, invalidHash(err)
	}
	if len(key) == 0 || len(key) > 1<<10 {
		return nil, invalidHash(fmt.Errorf("invalid hash key length: %d", len(key)))
	}

	return &argon2Params{
		memory:  memory,
		time:    time,
		threads: uint8(threads),
		salt:    salt,
		key:     key,
	}, nil
}

func isBcrypt(hash string) bool {
	return strings.HasPrefix(hash, "$2a$") || strings.HasPrefix(hash, "$2b$") || strings.HasPrefix(hash, "$2y$")
}

func invalidHash(err error) error {
	return oops.Code(CodeInternal).With("reason", "invalid_hash").Wrap(err)
}
