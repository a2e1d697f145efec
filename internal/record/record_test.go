package record

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_Deterministic(t *testing.T) {
	inputs := []string{
		"University of Oxford",
		"Max Planck Institute for Chemistry",
		"北京大学",
		"  leading whitespace is significant",
		"",
	}

	for _, in := range inputs {
		first := Fingerprint(in)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, Fingerprint(in), "fingerprint must be stable for %q", in)
		}
	}
}

func TestFingerprint_FixedWidth(t *testing.T) {
	inputs := []string{
		"",
		"a",
		"University of Oxford",
		"a very long affiliation string that goes on and on and mentions several departments, institutes, and a street address",
	}

	for _, in := range inputs {
		require.Len(t, Fingerprint(in), 16, "fingerprint of %q", in)
	}
}

func TestFingerprint_KnownValue(t *testing.T) {
	// xxhash64 of the empty input with the default seed.
	assert.Equal(t, "ef46db3751d8e999", Fingerprint(""))
}

func TestFingerprint_NoCollisionsInCorpus(t *testing.T) {
	seen := make(map[string]string)
	for i := 0; i < 5000; i++ {
		s := fmt.Sprintf("Department %d, University of Testing, Building %d", i, i%7)
		fp := Fingerprint(s)
		if prev, ok := seen[fp]; ok {
			t.Fatalf("collision: %q and %q both fingerprint to %s", prev, s, fp)
		}
		seen[fp] = s
	}
}

func TestFingerprint_DistinguishesCaseAndSpacing(t *testing.T) {
	assert.NotEqual(t, Fingerprint("University of Oxford"), Fingerprint("university of oxford"))
	assert.NotEqual(t, Fingerprint("University of Oxford"), Fingerprint("University of Oxford "))
}
