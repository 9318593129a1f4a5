package utils

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strings"
)

// NewOTPCode returns a uniformly random numeric code of n digits.
func NewOTPCode(n int) (string, error) {
	var b strings.Builder
	b.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

// HashOTP keys the code to its purpose and address with HMAC-SHA256 so
// a stored hash is useless without the server secret.
func HashOTP(secret, purpose, email, code string) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(purpose))
	m.Write([]byte{0})
	m.Write([]byte(strings.ToLower(strings.TrimSpace(email))))
	m.Write([]byte{0})
	m.Write([]byte(strings.TrimSpace(code)))
	return hex.EncodeToString(m.Sum(nil))
}
