// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package protect seals small blobs so that only the current user on the
// current machine can read them back.
package protect

import (
	"crypto/rand"
	"crypto/sha256"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"grimm.is/peek/internal/config"
	"grimm.is/peek/internal/errors"
)

// ErrTampered is returned when sealed data fails authentication.
var ErrTampered = stderrors.New("sealed data failed authentication")

// Protector seals and opens per-user data.
type Protector interface {
	Seal(plain []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

const (
	// KeyFileName is the per-user secret stored in the data directory.
	KeyFileName = ".peek.key"
	keyInfo     = "peek trust overrides v2"
	secretSize  = 32
)

// KeyFileProtector is an XChaCha20-Poly1305 sealer keyed by HKDF over a
// random secret kept in a 0600 file.
type KeyFileProtector struct {
	aead interface {
		NonceSize() int
		Overhead() int
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// NewKeyFileProtector loads or creates the secret in dir and derives the
// sealing key with the given salt.
func NewKeyFileProtector(dir string, salt []byte) (*KeyFileProtector, error) {
	secret, err := loadOrCreateSecret(filepath.Join(dir, KeyFileName))
	if err != nil {
		return nil, err
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(keyInfo)), key); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "derive key")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "init cipher")
	}
	return &KeyFileProtector{aead: aead}, nil
}

// Seal returns nonce||ciphertext.
func (p *KeyFileProtector) Seal(plain []byte) ([]byte, error) {
	nonce := make([]byte, p.aead.NonceSize(), p.aead.NonceSize()+len(plain)+p.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "generate nonce")
	}
	return p.aead.Seal(nonce, nonce, plain, nil), nil
}

func (p *KeyFileProtector) Open(sealed []byte) ([]byte, error) {
	ns := p.aead.NonceSize()
	if len(sealed) < ns+p.aead.Overhead() {
		return nil, ErrTampered
	}
	plain, err := p.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return nil, ErrTampered
	}
	return plain, nil
}

func loadOrCreateSecret(path string) ([]byte, error) {
	secret, err := config.SecureReadFile(path)
	if err == nil {
		if len(secret) != secretSize {
			return nil, errors.Errorf(errors.KindCorrupt, "key file %s has %d bytes", path, len(secret))
		}
		return secret, nil
	}
	if !stderrors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, errors.KindPermission, "read key file")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "create data dir")
	}
	secret = make([]byte, secretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "generate secret")
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if os.IsExist(err) {
		// Lost a race with another process; use its secret.
		return loadOrCreateSecret(path)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "create key file")
	}
	if _, err := f.Write(secret); err != nil {
		f.Close()
		return nil, errors.Wrap(err, errors.KindInternal, "write key file")
	}
	if err := f.Close(); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "close key file")
	}
	return secret, nil
}
