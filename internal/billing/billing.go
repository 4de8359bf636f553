// Package billing signs and verifies subscription payment requests for the
// payment gateway. The gateway contract is an HMAC-SHA256 digest over the
// tilde-joined merchant id, payment reference, amount and currency.
package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrBadSignature = errors.New("gateway signature mismatch")

type Plan struct {
	Code  string
	Name  string
	Price decimal.Decimal
}

// Plans are the subscription tiers offered to stores.
var Plans = []Plan{
	{Code: "basico", Name: "Plan Basico", Price: decimal.NewFromInt(29900)},
	{Code: "pro", Name: "Plan Pro", Price: decimal.NewFromInt(59900)},
}

func PlanByCode(code string) (Plan, bool) {
	for _, p := range Plans {
		if p.Code == code {
			return p, true
		}
	}
	return Plan{}, false
}

type Signer struct {
	merchantID string
	secret     []byte
}

func NewSigner(merchantID string, secret string) *Signer {
	return &Signer{merchantID: merchantID, secret: []byte(secret)}
}

func (s *Signer) MerchantID() string { return s.merchantID }

// Sign computes the gateway signature for an outgoing payment request.
// Amounts are normalized to two decimal places before hashing, matching what
// the gateway echoes back on confirmation.
func (s *Signer) Sign(reference string, amount decimal.Decimal, currency string) string {
	payload := strings.Join([]string{
		s.merchantID,
		reference,
		amount.StringFixed(2),
		strings.ToUpper(currency),
	}, "~")
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyConfirmation checks a gateway callback signature in constant time.
func (s *Signer) VerifyConfirmation(reference string, amount decimal.Decimal, currency string, signature string) error {
	want := s.Sign(reference, amount, currency)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}
