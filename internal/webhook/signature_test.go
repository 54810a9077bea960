package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const foxDigest = "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"

func TestSign(t *testing.T) {
	got := Sign("key", []byte("The quick brown fox jumps over the lazy dog"))
	assert.Equal(t, "sha256="+foxDigest, got)
}

func TestVerify(t *testing.T) {
	payload := []byte("The quick brown fox jumps over the lazy dog")

	tests := []struct {
		name      string
		secret    string
		signature string
		want      bool
	}{
		{"prefixed signature", "key", "sha256=" + foxDigest, true},
		{"bare hex", "key", foxDigest, true},
		{"upper case hex", "key", "SHA256=F7BC83F430538424B13298E6AA6FB143EF4D59A14946175997479DBC2D1A3CD8", true},
		{"surrounding spaces", "key", "  sha256=" + foxDigest + " ", true},
		{"wrong secret", "other", "sha256=" + foxDigest, false},
		{"empty signature", "key", "", false},
		{"prefix only", "key", "sha256=", false},
		{"tampered digest", "key", "sha256=" + foxDigest[:63] + "0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Verify(tt.secret, payload, tt.signature))
		})
	}
}

func TestVerify_TamperedPayload(t *testing.T) {
	sig := Sign("secret", []byte(`{"id":"evt_1"}`))
	assert.True(t, Verify("secret", []byte(`{"id":"evt_1"}`), sig))
	assert.False(t, Verify("secret", []byte(`{"id":"evt_2"}`), sig))
}
