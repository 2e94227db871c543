// Package notary bootstraps the CA/service certificate chain used by
// the TLS transport and seals/unseals artifact step secrets with
// RSA-OAEP. There is no third-party asymmetric-crypto dependency in
// the retrieved pack analogous to Rust's `rsa` crate (see DESIGN.md),
// so this package is one of the few built directly on the standard
// library's crypto/rsa and crypto/x509.
package notary

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"time"

	vorpalerrors "github.com/vorpalbuild/vorpal/pkg/errors"
)

const rsaKeyBits = 2048

// Bootstrap holds the generated CA and service key material, PEM-encoded.
type Bootstrap struct {
	CACert      []byte
	CAKey       []byte
	ServiceCert []byte
	ServiceKey  []byte
	ServicePub  []byte
}

// GenerateBootstrap creates a fresh self-signed CA and a service
// certificate signed by it for CN=localhost with the ServerAuth EKU,
// per the one-time key-bootstrap step of the content store.
func GenerateBootstrap() (*Bootstrap, error) {
	caKey, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "generate CA key", err)
	}

	caSerial, err := randSerial()
	if err != nil {
		return nil, err
	}
	caTemplate := &x509.Certificate{
		SerialNumber: caSerial,
		Subject:      pkix.Name{CommonName: "vorpal-ca"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(10, 0, 0),
		IsCA:         true,
		KeyUsage:     x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create CA certificate", err)
	}

	svcKey, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "generate service key", err)
	}
	svcSerial, err := randSerial()
	if err != nil {
		return nil, err
	}
	svcTemplate := &x509.Certificate{
		SerialNumber: svcSerial,
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().AddDate(2, 0, 0),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	svcDER, err := x509.CreateCertificate(rand.Reader, svcTemplate, caTemplate, &svcKey.PublicKey, caKey)
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create service certificate", err)
	}

	svcPubDER, err := x509.MarshalPKIXPublicKey(&svcKey.PublicKey)
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "marshal service public key", err)
	}

	return &Bootstrap{
		CACert:      pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER}),
		CAKey:       pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(caKey)}),
		ServiceCert: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: svcDER}),
		ServiceKey:  pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(svcKey)}),
		ServicePub:  pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: svcPubDER}),
	}, nil
}

func randSerial() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	serial, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "generate certificate serial", err)
	}
	return serial, nil
}

// WriteBootstrap persists a Bootstrap under the content store's key/
// directory, creating it if needed.
func WriteBootstrap(dir string, b *Bootstrap) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "create key directory", err)
	}
	files := map[string][]byte{
		"ca.pem":        b.CACert,
		"ca.key":        b.CAKey,
		"service.pem":   b.ServiceCert,
		"service.key":   b.ServiceKey,
		"service.pub":   b.ServicePub,
	}
	for name, data := range files {
		mode := os.FileMode(0o644)
		if name == "ca.key" || name == "service.key" {
			mode = 0o600
		}
		if err := os.WriteFile(dir+string(os.PathSeparator)+name, data, mode); err != nil {
			return vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "write "+name, err)
		}
	}
	return nil
}

// Encrypt seals plaintext under the RSA public key in pubPEM using
// OAEP/SHA-256, returning the base64-encoded ciphertext. Used only for
// ArtifactStepSecret.Value.
func Encrypt(pubPEM []byte, plaintext string) (string, error) {
	pub, err := parsePublicKey(pubPEM)
	if err != nil {
		return "", err
	}
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, []byte(plaintext), nil)
	if err != nil {
		return "", vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "encrypt secret", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt using the RSA private key in privPEM.
func Decrypt(privPEM []byte, ciphertextB64 string) (string, error) {
	priv, err := parsePrivateKey(privPEM)
	if err != nil {
		return "", err
	}
	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", vorpalerrors.Wrap(vorpalerrors.ErrCodeInvalidArgument, "decode ciphertext", err)
	}
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		return "", vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "decrypt secret", err)
	}
	return string(plaintext), nil
}

func parsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "invalid public key PEM")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInvalidArgument, "parse public key", err)
	}
	rsaPub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "public key is not RSA")
	}
	return rsaPub, nil
}

func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, vorpalerrors.New(vorpalerrors.ErrCodeInvalidArgument, "invalid private key PEM")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInvalidArgument, "parse private key", err)
	}
	return key, nil
}
