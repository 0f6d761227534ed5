package host

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	ic "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// peerIDFromPrivateKey derives the libp2p peer ID of an identity key
func peerIDFromPrivateKey(key crypto.PrivateKey) (peer.ID, error) {
	sk, ok := key.(ed25519.PrivateKey)
	if !ok {
		return "", fmt.Errorf("unsupported key type: %T", key)
	}
	privkey, err := ic.UnmarshalEd25519PrivateKey(sk)
	if err != nil {
		return "", err
	}
	return peer.IDFromPublicKey(privkey.GetPublic())
}

// peerIDFromCertificate derives the peer ID from the key a certificate was issued for
func peerIDFromCertificate(cert *x509.Certificate) (peer.ID, error) {
	pk, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return "", fmt.Errorf("unsupported public key type: %T", cert.PublicKey)
	}
	pubkey, err := ic.UnmarshalEd25519PublicKey(pk)
	if err != nil {
		return "", err
	}
	return peer.IDFromPublicKey(pubkey)
}

// selfSignedCertificate issues a one-year certificate for the identity key
func selfSignedCertificate(key crypto.PrivateKey) (*tls.Certificate, error) {
	sk, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("unsupported key type: %T", key)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "go-das"},
		NotBefore:    now.Add(-time.Minute),
		NotAfter:     now.Add(365 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, sk.Public(), sk)
	if err != nil {
		return nil, err
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(sk)
	if err != nil {
		return nil, err
	}

	cert, err := tls.X509KeyPair(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
	)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}
