// Package token signs and checks the (user id, issued at) pair carried by
// verification links.
//
// The signature is HMAC-SHA256 keyed by the server salt concatenated with the
// user id, over the issue timestamp concatenated with the user id, encoded as
// unpadded URL-safe base64 so it can be used as a path segment.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
)

func Sign(userID uint, issuedAt int64, salt string) string {
	key := salt + strconv.FormatUint(uint64(userID), 10)
	msg := strconv.FormatInt(issuedAt, 10) + strconv.FormatUint(uint64(userID), 10)

	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(msg))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature was issued for userID at issuedAt and is
// still inside the validity window. Links from the future are rejected.
func Verify(userID uint, issuedAt int64, signature, salt string, now, validateInterval int64) bool {
	if now < issuedAt || now-issuedAt > validateInterval {
		return false
	}
	expected := Sign(userID, issuedAt, salt)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Codec binds the server salt so callers never handle the secret directly.
type Codec struct {
	salt string
}

func NewCodec(salt string) *Codec {
	return &Codec{salt: salt}
}

func (c *Codec) Build(userID uint, issuedAt int64) string {
	return Sign(userID, issuedAt, c.salt)
}

func (c *Codec) Validate(userID uint, issuedAt int64, signature string, now, validateInterval int64) bool {
	return Verify(userID, issuedAt, signature, c.salt, now, validateInterval)
}
