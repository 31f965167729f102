package draftapi

import (
	crand "crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/aberdasher/draftbot/internal/util/randutil"
)

type TokenOptions struct {
	Time    uint32 `toml:"time"`
	Memory  uint32 `toml:"memory"`
	Threads uint8  `toml:"threads"`
	KeyLen  uint32 `toml:"key-len"`
	SaltLen uint32 `toml:"salt-len"`
}

var defaultTokenOptions = &TokenOptions{
	Time:    3,
	Memory:  16384,
	Threads: 1,
	KeyLen:  32,
	SaltLen: 32,
}

func hashToken(token string, salt []byte, o *TokenOptions) []byte {
	return argon2.IDKey([]byte(token), salt, o.Time, o.Memory, o.Threads, o.KeyLen)
}

// GenerateToken mints a fresh API token and its salted hash. Only the hash
// goes into the config file; the token itself is shown once.
func GenerateToken(o *TokenOptions) (token string, hash string, err error) {
	if o == nil {
		o = defaultTokenOptions
	}
	token, err = randutil.SecureID()
	if err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	salt := make([]byte, o.SaltLen)
	if _, err := io.ReadFull(crand.Reader, salt); err != nil {
		return "", "", fmt.Errorf("generate salt: %w", err)
	}
	hash = base64.StdEncoding.EncodeToString(salt) + "$" +
		base64.StdEncoding.EncodeToString(hashToken(token, salt, o))
	return token, hash, nil
}

// NewTokenChecker builds a TokenChecker verifying tokens against a salted
// hash produced by GenerateToken.
func NewTokenChecker(hash string, o *TokenOptions) (TokenChecker, error) {
	if o == nil {
		o = defaultTokenOptions
	}
	saltStr, hashStr, ok := strings.Cut(hash, "$")
	if !ok {
		return nil, fmt.Errorf("bad token hash format")
	}
	salt, err := base64.StdEncoding.DecodeString(saltStr)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	want, err := base64.StdEncoding.DecodeString(hashStr)
	if err != nil {
		return nil, fmt.Errorf("decode hash: %w", err)
	}
	return func(token string) error {
		if token == "" {
			return fmt.Errorf("no token")
		}
		if subtle.ConstantTimeCompare(hashToken(token, salt, o), want) != 1 {
			return fmt.Errorf("token mismatch")
		}
		return nil
	}, nil
}
