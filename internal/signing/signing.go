// Package signing implements the HMAC signature that accompanies a payment
// success report. The gateway signs order_id|payment_id with the shared
// secret; the verification service recomputes it before trusting the report.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the hex signature for one payment of one order.
func (s *Signer) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, s.secret)
	// The separator keeps ("ab","c") and ("a","bc") apart.
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Validate compares the provided signature with the expected one. Empty
// identifiers never validate.
func (s *Signer) Validate(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := s.Sign(orderID, paymentID)
	// hmac.Equal performs constant-time comparison.
	return hmac.Equal([]byte(expected), []byte(signature))
}
