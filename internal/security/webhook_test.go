package security

import "testing"

func TestWebhookSignatureRoundtrip(t *testing.T) {
	body := []byte(`{"event":"subscription.renewed","userId":"u1"}`)
	sig := SignWebhookBody("whsec-test", body)

	if !ValidateWebhookSignature("whsec-test", body, sig) {
		t.Fatal("expected valid signature to verify")
	}
	if ValidateWebhookSignature("whsec-test", []byte(`{"event":"tampered"}`), sig) {
		t.Fatal("expected tampered body to fail")
	}
	if ValidateWebhookSignature("wrong-secret", body, sig) {
		t.Fatal("expected wrong secret to fail")
	}
	if ValidateWebhookSignature("whsec-test", body, sig+"00") {
		t.Fatal("expected tampered signature to fail")
	}
	if ValidateWebhookSignature("whsec-test", body, "") {
		t.Fatal("expected empty signature to fail")
	}
}
