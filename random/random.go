package random

import (
	crand "crypto/rand"
	"encoding/base64"
	"math/big"
)

const charset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var charsetLen = big.NewInt(int64(len(charset)))

// String returns a random alphanumeric string. It panics if the system
// random source fails, which only happens on a broken host.
func String(length int) string {
	s, err := StringSecure(length)
	if err != nil {
		panic(err)
	}
	return s
}

func StringSecure(length int) (string, error) {
	b := make([]byte, length)
	for i := range b {
		num, err := crand.Int(crand.Reader, charsetLen)
		if err != nil {
			return "", err
		}
		b[i] = charset[num.Int64()]
	}
	return string(b), nil
}

// Token returns n random bytes encoded as unpadded URL-safe base64, suitable
// for oauth state and nonce values.
func Token(n int) (string, error) {
	b := make([]byte, n)
	if _, err := crand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
