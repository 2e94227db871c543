// Package transport builds TLS-secured gRPC servers and clients from a
// notary bootstrap: the CA certificate pins what a client trusts, the
// service certificate/key pair is what a server presents (clients
// present no certificate), following the real
// Vorpal SDK's own CA-pool-plus-ServerName("localhost") pattern.
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	vorpalerrors "github.com/vorpalbuild/vorpal/pkg/errors"
)

// Identity is the key material a plane presents to its gRPC transport:
// caPEM is what it trusts, certPEM/keyPEM is what it presents when serving.
type Identity struct {
	CAPEM   []byte
	CertPEM []byte
	KeyPEM  []byte
}

// LoadIdentity reads PEM files written by notary.WriteBootstrap out of dir.
func LoadIdentity(dir string) (*Identity, error) {
	ca, err := os.ReadFile(dir + "/ca.pem")
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "read ca.pem", err)
	}
	cert, err := os.ReadFile(dir + "/service.pem")
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "read service.pem", err)
	}
	key, err := os.ReadFile(dir + "/service.key")
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "read service.key", err)
	}
	return &Identity{CAPEM: ca, CertPEM: cert, KeyPEM: key}, nil
}

// ServerCredentials builds transport.ServerCredentials presenting id's
// service certificate, requiring no client certificate (clients
// authenticate via bearer tokens, not mTLS, per the spec's transport
// design).
func (id *Identity) ServerCredentials() (credentials.TransportCredentials, error) {
	cert, err := tls.X509KeyPair(id.CertPEM, id.KeyPEM)
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "parse service key pair", err)
	}
	return credentials.NewTLS(&tls.Config{Certificates: []tls.Certificate{cert}}), nil
}

// ClientCredentials builds transport.TransportCredentials that trust
// only id's CA, pinned to the service cert's CN (localhost).
func (id *Identity) ClientCredentials() (credentials.TransportCredentials, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(id.CAPEM) {
		return nil, vorpalerrors.New(vorpalerrors.ErrCodeInternal, "failed to append CA certificate")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool, ServerName: "localhost"}), nil
}

// NewServer builds a *grpc.Server presenting id's certificate, plus any
// additional options (e.g. unary/stream interceptors for bearer-token
// authentication).
func NewServer(id *Identity, opts ...grpc.ServerOption) (*grpc.Server, error) {
	creds, err := id.ServerCredentials()
	if err != nil {
		return nil, err
	}
	allOpts := append([]grpc.ServerOption{grpc.Creds(creds)}, opts...)
	return grpc.NewServer(allOpts...), nil
}

// Listen opens a TCP listener on [::]:port, matching the teacher SDK's
// own context-service listener convention.
func Listen(port int) (net.Listener, error) {
	addr := fmt.Sprintf("[::]:%d", port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, vorpalerrors.Wrap(vorpalerrors.ErrCodeInternal, "listen "+addr, err)
	}
	return l, nil
}

// Dial connects to target (host:port, with any https:// prefix
// stripped as the SDK does) using id's client credentials.
func Dial(id *Identity, target string) (*grpc.ClientConn, error) {
	creds, err := id.ClientCredentials()
	if err != nil {
		return nil, err
	}
	target = strings.TrimPrefix(target, "https://")
	target = strings.TrimPrefix(target, "http://")
	return grpc.NewClient(target, grpc.WithTransportCredentials(creds))
}
