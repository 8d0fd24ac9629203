package sshsession

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// ParsePrivateKey turns raw private key bytes into an ssh.Signer. Key material
// is tried as a PKCS#1 RSA PEM block first, then handed to the generic OpenSSH
// parser (PKCS#8, OpenSSH Ed25519, and friends). When both attempts fail, the
// RSA diagnostic is surfaced since that is the format users supply most often.
func ParsePrivateKey(keyData []byte) (ssh.Signer, error) {
	signer, rsaErr := parseRSAKey(keyData)
	if rsaErr == nil {
		return signer, nil
	}

	signer, sshErr := ssh.ParsePrivateKey(keyData)
	if sshErr == nil {
		return signer, nil
	}

	return nil, fmt.Errorf("invalid private key format: %v", rsaErr)
}

// parseRSAKey parses a traditional "RSA PRIVATE KEY" PEM block.
func parseRSAKey(keyData []byte) (ssh.Signer, error) {
	block, _ := pem.Decode(keyData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if !strings.Contains(block.Type, "RSA") {
		return nil, fmt.Errorf("not an RSA private key (PEM type %q)", block.Type)
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse RSA key: %w", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}
	return signer, nil
}
