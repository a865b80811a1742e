package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

type SignatureScheme string

const (
	SchemeHMACSHA256 SignatureScheme = "hmac-sha256"
	SchemeBlake2b    SignatureScheme = "blake2b"
)

// Each signature carries its purpose so one cannot stand in for another.
const (
	purposeRequest = "request"
	purposeConfirm = "confirm"
	purposeView    = "view"
)

// signatureMessage binds the purpose, the order id and the amount in minor
// units.
func signatureMessage(purpose, orderID string, amount int64) []byte {
	return []byte(purpose + "|" + orderID + "|" + strconv.FormatInt(amount, 10))
}

func (s SignatureScheme) validateKey(key []byte) error {
	switch s {
	case SchemeHMACSHA256:
		return nil
	case SchemeBlake2b:
		if len(key) > blake2b.Size {
			return fmt.Errorf("%w: blake2b keys are limited to %d bytes", ErrConfig, blake2b.Size)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown signature scheme %q", ErrConfig, s)
	}
}

func (s SignatureScheme) newHash(key []byte) hash.Hash {
	if s == SchemeBlake2b {
		// key length is checked when the config is loaded
		h, err := blake2b.New256(key)
		if err != nil {
			panic(err)
		}
		return h
	}
	return hmac.New(sha256.New, key)
}

func (s SignatureScheme) sign(key, msg []byte) string {
	h := s.newHash(key)
	h.Write(msg)
	return hex.EncodeToString(h.Sum(nil))
}

func (s SignatureScheme) verify(key, msg []byte, sig string) bool {
	if len(key) == 0 {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(sig))
	if err != nil || len(got) == 0 {
		return false
	}

	h := s.newHash(key)
	h.Write(msg)
	return hmac.Equal(got, h.Sum(nil))
}
