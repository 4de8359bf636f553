package billing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSignAndVerify(t *testing.T) {
	signer := NewSigner("merchant-1", "test-gateway-secret")
	amount := decimal.NewFromInt(59900)

	sig := signer.Sign("sub-abc", amount, "cop")
	if sig == "" {
		t.Fatal("empty signature")
	}
	if err := signer.VerifyConfirmation("sub-abc", amount, "COP", sig); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyRejectsTamperedAmount(t *testing.T) {
	signer := NewSigner("merchant-1", "test-gateway-secret")
	sig := signer.Sign("sub-abc", decimal.NewFromInt(59900), "COP")

	err := signer.VerifyConfirmation("sub-abc", decimal.NewFromInt(100), "COP", sig)
	if err != ErrBadSignature {
		t.Fatalf("err = %v, want ErrBadSignature", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	a := NewSigner("merchant-1", "secret-a")
	b := NewSigner("merchant-1", "secret-b")
	sig := a.Sign("sub-abc", decimal.NewFromInt(29900), "COP")

	if err := b.VerifyConfirmation("sub-abc", decimal.NewFromInt(29900), "COP", sig); err == nil {
		t.Fatal("expected signature mismatch")
	}
}

func TestPlanByCode(t *testing.T) {
	if _, ok := PlanByCode("pro"); !ok {
		t.Fatal("pro plan missing")
	}
	if _, ok := PlanByCode("nope"); ok {
		t.Fatal("unknown plan resolved")
	}
}
