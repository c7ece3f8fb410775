package commitment

import "testing"

func TestShouldCreateCommitment(t *testing.T) {
	cases := map[uint64]bool{0: false, 1: false, 499: false, 500: true, 999: false, 1000: true}
	for seqNo, want := range cases {
		if got := ShouldCreateCommitment(seqNo); got != want {
			t.Errorf("ShouldCreateCommitment(%d) = %v, want %v", seqNo, got, want)
		}
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	secret := []byte("server-secret")
	hmacHex, err := StateHMAC(secret, map[string]string{"balance": "100.00", "equity": "100.00", "highWaterMark": "100.00"})
	if err != nil {
		t.Fatalf("StateHMAC: %v", err)
	}

	c := Build("inst-1", 500, "deadbeef", hmacHex)
	if !Verify(c) {
		t.Fatal("expected freshly built commitment to verify")
	}

	c.StateHMAC = "tampered"
	if Verify(c) {
		t.Fatal("expected tampered commitment to fail verification")
	}
}

func TestHashDeterministic(t *testing.T) {
	h1 := Hash("inst-1", 500, "deadbeef", "aabbcc")
	h2 := Hash("inst-1", 500, "deadbeef", "aabbcc")
	if h1 != h2 {
		t.Fatal("Hash is not deterministic")
	}
	if len(h1) != 64 {
		t.Fatalf("Hash length = %d, want 64", len(h1))
	}
}

func TestIsNotarized(t *testing.T) {
	c := Build("inst-1", 500, "deadbeef", "aabbcc")
	if c.IsNotarized() {
		t.Fatal("fresh commitment should not be notarized")
	}
	ts := int64(1700000000)
	c.NotarizedAt = &ts
	if !c.IsNotarized() {
		t.Fatal("expected notarized commitment after setting NotarizedAt")
	}
}
