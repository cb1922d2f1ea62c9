package sshutil

import (
	"bytes"
	"fmt"

	"github.com/rileyhilliard/beacon/internal/errors"
)

// KeyType identifies the cryptographic family of a private key file.
// Classification is done by inspecting the key's textual preamble, matching
// real-world key file conventions rather than file extensions or metadata.
type KeyType int

const (
	// KeyEd25519 is an EdDSA key in the OpenSSH private key format.
	KeyEd25519 KeyType = iota
	// KeyRSA is an RSA key in PEM format.
	KeyRSA
	// KeyECDSA is an elliptic-curve key in PEM format.
	KeyECDSA
)

// String returns the human-readable name of the key family.
func (k KeyType) String() string {
	switch k {
	case KeyEd25519:
		return "ed25519"
	case KeyRSA:
		return "rsa"
	case KeyECDSA:
		return "ecdsa"
	default:
		return "unknown"
	}
}

// ClassifyKey inspects the textual preamble of a private key and returns its
// family. Returns an AUTH error when the preamble matches no supported
// family.
func ClassifyKey(data []byte) (KeyType, error) {
	switch {
	case bytes.Contains(data, []byte("OPENSSH PRIVATE KEY")):
		return KeyEd25519, nil
	case bytes.Contains(data, []byte("RSA PRIVATE KEY")):
		return KeyRSA, nil
	case bytes.Contains(data, []byte("EC PRIVATE KEY")),
		bytes.Contains(data, []byte("ECDSA PRIVATE KEY")):
		return KeyECDSA, nil
	default:
		return 0, errors.New(errors.ErrAuth,
			"Unrecognized private key format",
			"Supported key types: ed25519 (OpenSSH), RSA, ECDSA. Generate one with: ssh-keygen -t ed25519")
	}
}

// EncryptedKeyError is returned when an SSH key requires a passphrase.
type EncryptedKeyError struct {
	Path string
}

func (e *EncryptedKeyError) Error() string {
	return fmt.Sprintf("SSH key at %s is encrypted (passphrase protected)", e.Path)
}

// isEncryptedPEM checks if PEM data contains encryption markers.
func isEncryptedPEM(data []byte) bool {
	return bytes.Contains(data, []byte("ENCRYPTED")) ||
		bytes.Contains(data, []byte("Proc-Type: 4,ENCRYPTED"))
}
