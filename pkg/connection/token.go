package connection

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/AatozInnoInc/bt-led-controller-sub000/pkg/wire"
)

// DefaultTokenSalt is the application key mixed into every owner token.
var DefaultTokenSalt = []byte("bt-led-controller owner v1")

const tokenInfo = "owner-token"

// ErrNoUser indicates ownership was required but no user id is configured.
var ErrNoUser = errors.New("no user id configured")

// OwnerToken derives the token a user presents to claim and verify a
// controller. The same user and salt always give the same token.
func OwnerToken(userID string, salt []byte) (wire.OwnerToken, error) {
	var tok wire.OwnerToken
	if userID == "" {
		return tok, ErrNoUser
	}
	if len(salt) == 0 {
		salt = DefaultTokenSalt
	}

	r := hkdf.New(sha256.New, []byte(userID), salt, []byte(tokenInfo))
	if _, err := io.ReadFull(r, tok[:]); err != nil {
		return tok, fmt.Errorf("derive owner token: %w", err)
	}
	return tok, nil
}
