// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"grimm.is/peek/internal/config"
	"grimm.is/peek/internal/errors"
)

// TokenFileName holds the per-user API token inside the data dir.
const TokenFileName = "api_token"

// Header names accepted for the API token.
const (
	HeaderAPIKey = "X-API-Key"
	bearerPrefix = "Bearer "
)

// TokenPath returns the token file location for dataDir.
func TokenPath(dataDir string) string {
	return filepath.Join(dataDir, TokenFileName)
}

// ReadToken returns the token stored in dataDir.
func ReadToken(dataDir string) (string, error) {
	data, err := config.SecureReadFile(TokenPath(dataDir))
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Wrap(err, errors.KindNotFound, "api token")
		}
		return "", err
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", errors.New(errors.KindCorrupt, "api token file is empty")
	}
	return token, nil
}

// LoadOrCreateToken returns the token stored in dataDir, writing a fresh
// one (owner-only) if there is none.
func LoadOrCreateToken(dataDir string) (string, error) {
	token, err := ReadToken(dataDir)
	if err == nil {
		return token, nil
	}
	if !errors.IsKind(err, errors.KindNotFound) && !errors.IsKind(err, errors.KindCorrupt) {
		return "", err
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, errors.KindInternal, "generate api token")
	}
	token = hex.EncodeToString(buf)
	if err := config.SecureWriteFile(TokenPath(dataDir), []byte(token+"\n")); err != nil {
		return "", err
	}
	return token, nil
}

func isMutating(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

// loopbackHost reports whether the Host header names this machine.
func loopbackHost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func requestToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, bearerPrefix) {
		return strings.TrimPrefix(auth, bearerPrefix)
	}
	return r.Header.Get(HeaderAPIKey)
}

// guard rejects requests that did not come from a local client of this
// user. Every request needs a loopback Host and, if sent, a same-origin
// Origin. Mutating requests also need the API token and a JSON body type.
func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !loopbackHost(r.Host) {
			WriteError(w, http.StatusForbidden, "Host not allowed")
			return
		}
		if !sameOrigin(r) {
			WriteError(w, http.StatusForbidden, "Cross-origin request refused")
			return
		}
		if !isMutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		if s.token != "" {
			got := requestToken(r)
			if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
				s.logger.Warn("api request with missing or invalid token", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
				WriteError(w, http.StatusUnauthorized, "Authentication required")
				return
			}
		}
		if r.Method != http.MethodDelete {
			mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
			if err != nil || mt != "application/json" {
				WriteError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
