package helpers

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"math/big"
)

// ResetTokenBytes is the entropy of a password reset token.
const ResetTokenBytes = 20

const referralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// ReferralCodeLength is the length of generated referral codes.
const ReferralCodeLength = 8

// GenHexToken returns n random bytes encoded as 2n hex characters.
func GenHexToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenURLToken returns n random bytes, base64url encoded without padding.
func GenURLToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken returns the hex SHA-256 digest of a raw token. The digest is what
// gets stored; the raw value only ever travels to the user.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// GenReferralCode returns a random uppercase code without ambiguous
// characters (0/O, 1/I).
func GenReferralCode() (string, error) {
	out := make([]byte, ReferralCodeLength)
	max := big.NewInt(int64(len(referralAlphabet)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = referralAlphabet[n.Int64()]
	}
	return string(out), nil
}
