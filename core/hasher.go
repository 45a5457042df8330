package core

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

// Supported hash algorithms.
const (
	HashArgon2id = "argon2id"
	HashBcrypt   = "bcrypt"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2SaltLen = 16        // salt length in bytes
	argon2KeyLen  = 32        // output length in bytes

	// Upper bounds accepted when reading parameters back out of a stored hash.
	argon2MaxMemory = 1024 * 1024
	argon2MaxTime   = 64
	argon2MaxKeyLen = 1024
)

// dummyPasswordHash is verified when a username does not exist so that the
// response time of Login does not reveal whether the account exists.
// It never matches any password.
//
//nolint:gosec // G101: fake hash, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// CredentialHasher derives and checks self-describing password hashes.
type CredentialHasher interface {
	// Hash produces a salted hash; two calls on the same input differ.
	Hash(plaintext string) (string, error)
	// Verify reports whether plaintext matches hash. Malformed hashes never match.
	Verify(plaintext, hash string) bool
}

// PasswordHasher hashes with the configured algorithm and verifies any supported format,
// so records written before an algorithm switch keep working.
type PasswordHasher struct {
	algorithm  string
	bcryptCost int
}

// NewPasswordHasher returns a hasher producing hashes of the given algorithm.
func NewPasswordHasher(algorithm string) (*PasswordHasher, error) {
	switch algorithm {
	case "", HashArgon2id:
		return &PasswordHasher{algorithm: HashArgon2id, bcryptCost: bcrypt.DefaultCost}, nil
	case HashBcrypt:
		return &PasswordHasher{algorithm: HashBcrypt, bcryptCost: bcrypt.DefaultCost}, nil
	default:
		return nil, newError(KindConfig, "unsupported hash algorithm", fmt.Errorf("algorithm %q", algorithm))
	}
}

// Algorithm returns the algorithm used for new hashes.
func (h *PasswordHasher) Algorithm() string {
	return h.algorithm
}

// Hash produces a salted hash of plaintext.
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", newError(KindValidation, "missing password", nil)
	}
	if h.algorithm == HashBcrypt {
		return h.hashBcrypt(plaintext)
	}
	return hashArgon2id(plaintext)
}

func (h *PasswordHasher) hashBcrypt(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", newError(KindValidation, "password too long", err)
		}
		return "", oops.Code("HASH_FAILED").With("algorithm", HashBcrypt).Wrap(err)
	}
	return string(hash), nil
}

func hashArgon2id(plaintext string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("HASH_SALT_FAILED").Wrap(err)
	}

	digest := argon2.IDKey([]byte(plaintext), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<digest>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	), nil
}

// Verify reports whether plaintext matches hash.
func (h *PasswordHasher) Verify(plaintext, hash string) bool {
	switch {
	case strings.HasPrefix(hash, "$argon2id$"):
		return verifyArgon2id(plaintext, hash)
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
	default:
		return false
	}
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	digest  []byte
}

func verifyArgon2id(plaintext, encoded string) bool {
	p, err := parseArgon2id(encoded)
	if err != nil {
		return false
	}
	computed := argon2.IDKey([]byte(plaintext), p.salt, p.time, p.memory, p.threads, uint32(len(p.digest)))
	return subtle.ConstantTimeCompare(computed, p.digest) == 1
}

func parseArgon2id(encoded string) (*argon2Params, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != HashArgon2id {
		return nil, errors.New("invalid hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, errors.New("unsupported argon2 version")
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, errors.New("invalid argon2 parameters")
	}
	if time < 1 || time > argon2MaxTime || threads < 1 || threads > 255 || memory < 1 || memory > argon2MaxMemory {
		return nil, errors.New("argon2 parameters out of range")
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return nil, errors.New("invalid salt encoding")
	}
	digest, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(digest) == 0 || len(digest) > argon2MaxKeyLen {
		return nil, errors.New("invalid digest encoding")
	}

	return &argon2Params{
		memory:  memory,
		time:    time,
		threads: uint8(threads),
		salt:    salt,
		digest:  digest,
	}, nil
}
