package checksum

import (
	"bytes"
	"testing"
)

func TestSizeAndSum(t *testing.T) {
	if got := Size(false); got != 4 {
		t.Errorf("Size(false) = %d, want 4", got)
	}
	if got := Size(true); got != 32 {
		t.Errorf("Size(true) = %d, want 32", got)
	}

	data := []byte("hello world")
	crc := Sum(false, data)
	if len(crc) != 4 {
		t.Fatalf("len(crc) = %d, want 4", len(crc))
	}
	sha := Sum(true, data)
	if len(sha) != 32 {
		t.Fatalf("len(sha) = %d, want 32", len(sha))
	}
}

func TestVerify(t *testing.T) {
	data := []byte("the quick brown fox")
	for _, useSHA := range []bool{false, true} {
		sum := Sum(useSHA, data)
		if !Verify(useSHA, data, sum) {
			t.Errorf("Verify(%v) failed for matching data", useSHA)
		}
		mutated := bytes.Clone(data)
		mutated[0] ^= 0xFF
		if Verify(useSHA, mutated, sum) {
			t.Errorf("Verify(%v) succeeded for mutated data", useSHA)
		}
	}
}
