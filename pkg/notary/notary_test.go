package notary

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateBootstrapProducesValidCertChain(t *testing.T) {
	b, err := GenerateBootstrap()
	require.NoError(t, err)
	require.NotEmpty(t, b.CACert)
	require.NotEmpty(t, b.ServiceCert)
	require.NotEmpty(t, b.ServicePub)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	b, err := GenerateBootstrap()
	require.NoError(t, err)

	ciphertext, err := Encrypt(b.ServicePub, "abc")
	require.NoError(t, err)
	require.NotEqual(t, "abc", ciphertext)

	plaintext, err := Decrypt(b.ServiceKey, ciphertext)
	require.NoError(t, err)
	require.Equal(t, "abc", plaintext)
}

func TestEncryptIsRandomized(t *testing.T) {
	b, err := GenerateBootstrap()
	require.NoError(t, err)

	c1, err := Encrypt(b.ServicePub, "abc")
	require.NoError(t, err)
	c2, err := Encrypt(b.ServicePub, "abc")
	require.NoError(t, err)
	require.NotEqual(t, c1, c2)

	p1, err := Decrypt(b.ServiceKey, c1)
	require.NoError(t, err)
	p2, err := Decrypt(b.ServiceKey, c2)
	require.NoError(t, err)
	require.Equal(t, p1, p2)
}
