package hash

import "testing"

func TestHashAndVerifyRoundTrip(t *testing.T) {
	hash, err := HashPasswd("correct-horse", 4)
	if err != nil {
		t.Fatalf("HashPasswd() error = %v", err)
	}

	if !VerifyPasswd(hash, "correct-horse") {
		t.Errorf("VerifyPasswd(matching password) = false, want true")
	}
	if VerifyPasswd(hash, "wrong-password") {
		t.Errorf("VerifyPasswd(wrong password) = true, want false")
	}
}
