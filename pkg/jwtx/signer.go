package jwtx

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// MinKeyLength is the shortest HS256 key accepted, in bytes.
const MinKeyLength = 32

// Signer is anything that can sign access-token claims.
type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
}

// HS256Signer signs with a symmetric key held only in memory.
type HS256Signer struct {
	key []byte
}

// NewSignerHS256 returns ErrSigning when the key is missing or too short.
func NewSignerHS256(key []byte) (*HS256Signer, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return &HS256Signer{key: append([]byte(nil), key...)}, nil
}

func (s *HS256Signer) Alg() string { return jwt.SigningMethodHS256.Alg() }

func (s *HS256Signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigning, err)
	}
	return signed, nil
}

// DecodeKey decodes a configured key in standard or URL base64, padded or
// not.
func DecodeKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("%w: key is empty", ErrSigning)
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if key, err := enc.DecodeString(encoded); err == nil {
			if err := checkKey(key); err != nil {
				return nil, err
			}
			return key, nil
		}
	}
	return nil, fmt.Errorf("%w: key is not base64", ErrSigning)
}

func checkKey(key []byte) error {
	if len(key) < MinKeyLength {
		return fmt.Errorf("%w: key must be at least %d bytes, got %d", ErrSigning, MinKeyLength, len(key))
	}
	return nil
}
