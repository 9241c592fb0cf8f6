package auth

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// Hasher is the password hashing capability. The hash is one-way and
// verification-only; Compare must be resistant to timing side channels,
// which bcrypt's comparison already guarantees.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Compare(hash, plaintext string) error
}

// BcryptHasher hashes passwords with bcrypt.
type BcryptHasher struct {
	cost int
}

var _ Hasher = (*BcryptHasher)(nil)

// NewBcryptHasher returns a bcrypt hasher. A cost of 0 selects
// bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (h *BcryptHasher) Compare(hash, plaintext string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
}

// TokenSource produces opaque bearer tokens.
type TokenSource interface {
	Token() (string, error)
}

// tokenBytes gives 128 bits of entropy per token.
const tokenBytes = 16

// HexTokenSource reads crypto/rand and hex-encodes the result.
type HexTokenSource struct{}

var _ TokenSource = (*HexTokenSource)(nil)

func NewHexTokenSource() *HexTokenSource { return &HexTokenSource{} }

func (*HexTokenSource) Token() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
