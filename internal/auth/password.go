package auth

import (
	"crypto/md5" //nolint:gosec // wire-compatible with provisioned bus secrets
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argonPrefix marks a stored secret in Argon2id PHC form:
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
const argonPrefix = "$argon2id$"

// Argon2id parameters for newly hashed secrets.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 1
	argonKeyLen  = 32
	argonSaltLen = 16

	// Stored secrets asking for more memory than this are rejected
	// rather than allocated.
	argonMaxMemory = 1024 * 1024 // KiB
)

// DigestSecret returns the stored form of a bus credential:
// lowercase hex md5 of password followed by username.
func DigestSecret(password, username string) string {
	sum := md5.Sum([]byte(password + username)) //nolint:gosec // see DigestSecret
	return hex.EncodeToString(sum[:])
}

// HashSecret returns an Argon2id stored form of a bus credential over the
// same password+username input. VerifySecret accepts it wherever a digest is
// accepted, so secrets can be re-provisioned one at a time.
func HashSecret(password, username string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	p := argonParams{time: argonTime, memory: argonMemory, threads: argonThreads}
	key := p.derive(password+username, salt, argonKeyLen)

	b64 := base64.RawStdEncoding.EncodeToString
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argonPrefix, argon2.Version, p.memory, p.time, p.threads, b64(salt), b64(key)), nil
}

// VerifySecret checks a bus password against a stored secret, which is either
// a DigestSecret hex digest or a HashSecret PHC string.
// Returns ErrInvalidSecret if an Argon2id secret cannot be decoded.
func VerifySecret(stored, password, username string) (bool, error) {
	if !strings.HasPrefix(stored, argonPrefix) {
		candidate := DigestSecret(password, username)
		return subtle.ConstantTimeCompare([]byte(strings.ToLower(stored)), []byte(candidate)) == 1, nil
	}

	p, salt, key, err := decodeArgon(stored)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidSecret, err)
	}
	candidate := p.derive(password+username, salt, uint32(len(key))) //nolint:gosec // G115: key length always fits uint32
	return subtle.ConstantTimeCompare(key, candidate) == 1, nil
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

func (p argonParams) derive(input string, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey([]byte(input), salt, p.time, p.memory, p.threads, keyLen)
}

// decodeArgon splits a PHC string into its parameters, salt and key.
func decodeArgon(encoded string) (argonParams, []byte, []byte, error) {
	var p argonParams

	rest, ok := strings.CutPrefix(encoded, argonPrefix)
	if !ok {
		return p, nil, nil, fmt.Errorf("not an argon2id secret")
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 { //nolint:mnd // version, params, salt, key
		return p, nil, nil, fmt.Errorf("want 4 fields after %s, got %d", argonPrefix, len(fields))
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}
	if _, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, fmt.Errorf("parsing parameters: %w", err)
	}
	if p.time < 1 || p.threads < 1 {
		return p, nil, nil, fmt.Errorf("time and parallelism must be at least 1")
	}
	if p.memory < 1 || p.memory > argonMaxMemory {
		return p, nil, nil, fmt.Errorf("memory %d KiB outside 1..%d", p.memory, argonMaxMemory)
	}

	salt, err := base64.RawStdEncoding.DecodeString(fields[2])
	if err != nil {
		return p, nil, nil, fmt.Errorf("decoding salt: %w", err)
	}
	key, err := base64.RawStdEncoding.DecodeString(fields[3])
	if err != nil {
		return p, nil, nil, fmt.Errorf("decoding key: %w", err)
	}
	if len(key) == 0 {
		return p, nil, nil, fmt.Errorf("empty key")
	}
	return p, salt, key, nil
}
