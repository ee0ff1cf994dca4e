package sha256

import "testing"

func TestHashKnownDigest(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("<html><body>MR. TRUMP: Thank you.</body></html>"))
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex chars, got %d (%q)", len(got), got)
	}
	again, err := h.Hash([]byte("<html><body>MR. TRUMP: Thank you.</body></html>"))
	if err != nil {
		t.Fatalf("Hash() repeat error = %v", err)
	}
	if again != got {
		t.Fatalf("digest not deterministic: %s vs %s", got, again)
	}
}

func TestHashDistinguishesContent(t *testing.T) {
	t.Parallel()

	h := New()
	a, _ := h.Hash([]byte("page one"))
	b, _ := h.Hash([]byte("page two"))
	if a == b {
		t.Fatal("different content produced the same digest")
	}
}
