package crypto

import "testing"

func TestEd25519SignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := GenerateEd25519Key()
	if err != nil {
		t.Fatalf("GenerateEd25519Key: %v", err)
	}
	msg := []byte("guarantee:work-report-digest")
	sig := Ed25519Sign(priv, msg)
	if !Ed25519Verify(pub, msg, sig) {
		t.Fatal("valid signature should verify")
	}
}

func TestEd25519VerifyRejectsTamperedMessage(t *testing.T) {
	pub, priv, err := GenerateEd25519Key()
	if err != nil {
		t.Fatalf("GenerateEd25519Key: %v", err)
	}
	sig := Ed25519Sign(priv, []byte("original"))
	if Ed25519Verify(pub, []byte("tampered"), sig) {
		t.Fatal("signature over a different message should not verify")
	}
}

func TestEd25519VerifyRejectsWrongKey(t *testing.T) {
	_, priv, err := GenerateEd25519Key()
	if err != nil {
		t.Fatalf("GenerateEd25519Key: %v", err)
	}
	otherPub, _, err := GenerateEd25519Key()
	if err != nil {
		t.Fatalf("GenerateEd25519Key: %v", err)
	}
	sig := Ed25519Sign(priv, []byte("msg"))
	if Ed25519Verify(otherPub, []byte("msg"), sig) {
		t.Fatal("signature should not verify under an unrelated public key")
	}
}
