// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package trust

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"grimm.is/peek/internal/errors"
)

// SigFileSuffix is appended to an executable path to find its detached
// signature.
const SigFileSuffix = ".sig"

// Publisher is a named ed25519 signing key.
type Publisher struct {
	Name string
	Key  ed25519.PublicKey
}

// ParsePublisher decodes a base64 ed25519 public key.
func ParsePublisher(name, b64 string) (Publisher, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return Publisher{}, errors.Wrapf(err, errors.KindValidation, "publisher %q: bad key encoding", name)
	}
	if len(raw) != ed25519.PublicKeySize {
		return Publisher{}, errors.Errorf(errors.KindValidation, "publisher %q: key is %d bytes, want %d", name, len(raw), ed25519.PublicKeySize)
	}
	return Publisher{Name: name, Key: ed25519.PublicKey(raw)}, nil
}

// SigFileVerifier checks a detached "<exe>.sig" file holding a base64
// ed25519 signature over the SHA-256 of the executable.
type SigFileVerifier struct {
	publishers []Publisher
}

// NewSigFileVerifier returns a verifier trusting the given publishers.
func NewSigFileVerifier(publishers []Publisher) *SigFileVerifier {
	ps := append([]Publisher(nil), publishers...)
	sort.Slice(ps, func(i, j int) bool { return ps[i].Name < ps[j].Name })
	return &SigFileVerifier{publishers: ps}
}

func (v *SigFileVerifier) Verify(ctx context.Context, path string) (Signature, error) {
	raw, err := os.ReadFile(path + SigFileSuffix)
	if os.IsNotExist(err) {
		return Signature{}, ErrNoSignature
	}
	if err != nil {
		return Signature{}, fmt.Errorf("read signature: %w", err)
	}

	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return Signature{}, errors.New(errors.KindValidation, "malformed signature file")
	}

	digest, err := fileDigest(ctx, path)
	if err != nil {
		return Signature{}, err
	}

	for _, p := range v.publishers {
		if ed25519.Verify(p.Key, digest, sig) {
			return Signature{Signer: p.Name}, nil
		}
	}
	return Signature{}, ErrDistrusted
}

func fileDigest(ctx context.Context, path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, ctxReader{ctx: ctx, r: f}); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// SignFile writes the detached signature for path. It is the producer side
// of SigFileVerifier and is used by tooling and tests.
func SignFile(ctx context.Context, path string, key ed25519.PrivateKey) error {
	digest, err := fileDigest(ctx, path)
	if err != nil {
		return err
	}
	sig := ed25519.Sign(key, digest)
	return os.WriteFile(path+SigFileSuffix, []byte(base64.StdEncoding.EncodeToString(sig)+"\n"), 0o644)
}
