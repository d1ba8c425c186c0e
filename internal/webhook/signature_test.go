package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event_id":"evt_1","status":"delivered"}`)
	secret := "whsec_test"

	sig := Sign(body, secret)
	require.NoError(t, VerifySignature(body, sig, secret))
	require.NoError(t, VerifySignature(body, "sha256="+sig, secret))

	assert.ErrorIs(t, VerifySignature(body, sig, "wrong-secret"), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature([]byte(`tampered`), sig, secret), ErrBadSignature)
	assert.ErrorIs(t, VerifySignature(body, "", secret), ErrMissingSignature)
}

func TestAllowList(t *testing.T) {
	al, err := NewAllowList([]string{"10.0.0.0/8", "203.0.113.7"})
	require.NoError(t, err)

	assert.True(t, al.Allowed("10.1.2.3"))
	assert.True(t, al.Allowed("203.0.113.7"))
	assert.False(t, al.Allowed("203.0.113.8"))
	assert.False(t, al.Allowed("192.168.1.1"))
	assert.False(t, al.Allowed("not-an-ip"))
}

func TestAllowListEmptyAllowsAll(t *testing.T) {
	al, err := NewAllowList(nil)
	require.NoError(t, err)
	assert.True(t, al.Allowed("192.168.1.1"))
}

func TestAllowListRejectsGarbageEntry(t *testing.T) {
	_, err := NewAllowList([]string{"10.0.0.0/8", "banana"})
	require.Error(t, err)
}
