package e2e

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripPayload(t *testing.T) {
	key, err := DeriveKey("hunter2", "ujpah72o0")
	require.NoError(t, err)
	require.True(t, key.Enabled())

	payload := map[string]any{
		"type":             "mirror",
		"title":            "Alice",
		"body":             "see you at 8",
		"application_name": "Messages",
	}
	plain, err := json.Marshal(payload)
	require.NoError(t, err)

	ciphertext, err := key.Encrypt(plain)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, byte('1'), raw[0])

	opened, err := key.Decrypt(ciphertext)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(opened, &got))
	assert.Equal(t, payload, got)
}

func TestWrongKeyFails(t *testing.T) {
	a, err := DeriveKey("right", "user")
	require.NoError(t, err)
	b, err := DeriveKey("wrong", "user")
	require.NoError(t, err)

	ct, err := a.Encrypt([]byte(`{"type":"clip"}`))
	require.NoError(t, err)
	_, err = b.Decrypt(ct)
	assert.Error(t, err)
}

func TestSaltIsUserIden(t *testing.T) {
	a, err := DeriveKey("same", "user-a")
	require.NoError(t, err)
	b, err := DeriveKey("same", "user-b")
	require.NoError(t, err)

	ct, err := a.Encrypt([]byte("x"))
	require.NoError(t, err)
	_, err = b.Decrypt(ct)
	assert.Error(t, err)
}

func TestDisabledKey(t *testing.T) {
	key, err := DeriveKey("", "user")
	require.NoError(t, err)
	assert.False(t, key.Enabled())

	_, err = key.Decrypt("AA==")
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = key.Encrypt([]byte("x"))
	assert.ErrorIs(t, err, ErrDisabled)

	var nilKey *Key
	assert.False(t, nilKey.Enabled())
}

func TestMalformedInput(t *testing.T) {
	key, err := NewKey(make([]byte, 32))
	require.NoError(t, err)

	_, err = key.Decrypt("not base64!")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = key.Decrypt(base64.StdEncoding.EncodeToString([]byte("1short")))
	assert.ErrorIs(t, err, ErrMalformed)

	bad := make([]byte, 1+tagLen+ivLen+4)
	bad[0] = '2'
	_, err = key.Decrypt(base64.StdEncoding.EncodeToString(bad))
	assert.ErrorIs(t, err, ErrUnknownVersion)
}
