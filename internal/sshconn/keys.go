package sshconn

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"

	"github.com/gluk-w/claworc/log-viewer/internal/logutil"
)

// LoadSigner reads and parses a private key file. An empty passphrase means
// the key is expected to be unencrypted. Failures are reported as
// ErrKeyUnusable, which is a kind of ErrAuthRejected.
func LoadSigner(path, passphrase string) (ssh.Signer, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read private key %s: %w", ErrKeyUnusable, logutil.SanitizeForLog(path), err)
	}

	var signer ssh.Signer
	if passphrase == "" {
		signer, err = ssh.ParsePrivateKey(keyData)
	} else {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(passphrase))
	}
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%w: private key %s is encrypted and no passphrase was given", ErrKeyUnusable, logutil.SanitizeForLog(path))
		}
		// Parse errors can echo key material; keep only the path.
		return nil, fmt.Errorf("%w: parse private key %s", ErrKeyUnusable, logutil.SanitizeForLog(path))
	}
	return signer, nil
}
