package account

import (
	"encoding/hex"
	"testing"

	ec "github.com/bsv-blockchain/go-sdk/primitives/ec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) *ec.PrivateKey {
	t.Helper()
	priv, err := ec.NewPrivateKey()
	require.NoError(t, err)
	return priv
}

func TestFromPublicKey_Validates(t *testing.T) {
	for _, mainnet := range []bool{true, false} {
		priv := newKey(t)
		addr, err := FromPublicKey(priv.PubKey(), mainnet)
		require.NoError(t, err)
		assert.NotEmpty(t, addr)
		assert.NoError(t, Validate(addr))
	}
}

func TestFromPublicKey_Nil(t *testing.T) {
	_, err := FromPublicKey(nil, true)
	assert.ErrorIs(t, err, ErrInvalidPublicKey)
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name string
		addr string
	}{
		{"empty", ""},
		{"garbage", "not-an-address"},
		{"truncated", "1BoatSLRHtKNngkdXEeobR76b53LETtpy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, Validate(tt.addr), ErrInvalidAddress)
		})
	}
}

func TestValidate_Checksum(t *testing.T) {
	addr, err := FromPublicKey(newKey(t).PubKey(), true)
	require.NoError(t, err)
	require.NoError(t, Validate(addr))

	// Swap the last character for another base58 symbol.
	last := addr[len(addr)-1]
	repl := byte('a')
	if last == repl {
		repl = 'b'
	}
	corrupted := addr[:len(addr)-1] + string(repl)
	assert.ErrorIs(t, Validate(corrupted), ErrInvalidAddress)
}

func TestDigest_Concatenates(t *testing.T) {
	a := Digest([]byte("ab"), []byte("c"))
	b := Digest([]byte("abc"))
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, Digest([]byte("abd")))
}

func TestSignVerify_RoundTrip(t *testing.T) {
	priv := newKey(t)
	digest := Digest([]byte("POST\n/api/claim\n1700000000\n{}"))

	sigHex, err := Sign(priv, digest)
	require.NoError(t, err)

	pubHex := hex.EncodeToString(priv.PubKey().Compressed())
	addr, err := VerifySignature(pubHex, sigHex, digest, false)
	require.NoError(t, err)

	want, err := FromPublicKey(priv.PubKey(), false)
	require.NoError(t, err)
	assert.Equal(t, want, addr)
}

func TestVerifySignature_Rejects(t *testing.T) {
	priv := newKey(t)
	other := newKey(t)
	digest := Digest([]byte("message"))
	sigHex, err := Sign(priv, digest)
	require.NoError(t, err)
	pubHex := hex.EncodeToString(priv.PubKey().Compressed())
	otherHex := hex.EncodeToString(other.PubKey().Compressed())

	tests := []struct {
		name    string
		pub     string
		sig     string
		digest  []byte
		wantErr error
	}{
		{"wrong key", otherHex, sigHex, digest, ErrInvalidSignature},
		{"wrong digest", pubHex, sigHex, Digest([]byte("other")), ErrInvalidSignature},
		{"bad pubkey hex", "zz", sigHex, digest, ErrInvalidPublicKey},
		{"bad pubkey bytes", "0102", sigHex, digest, ErrInvalidPublicKey},
		{"bad sig hex", pubHex, "zz", digest, ErrInvalidSignature},
		{"bad sig der", pubHex, "3001", digest, ErrInvalidSignature},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifySignature(tt.pub, tt.sig, tt.digest, true)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
