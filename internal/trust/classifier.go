// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package trust classifies executables by content hash and code signature,
// memoizes the results per path and applies user overrides on top.
package trust

import (
	"context"
	stderrors "errors"

	"grimm.is/peek/internal/logging"
	"grimm.is/peek/internal/model"
	"grimm.is/peek/internal/netstat"
)

// Where a Result came from.
const (
	SourceNone     = "none"
	SourceSystem   = "system"
	SourceOverride = "override"
	SourceCache    = "cache"
	SourceComputed = "computed"
)

// Result is the outcome of classifying one executable.
type Result struct {
	Path   string            `json:"path"`
	Hash   string            `json:"hash"`
	Status model.TrustStatus `json:"status"`
	Signer string            `json:"signer,omitempty"`
	Source string            `json:"source"`
}

// OverrideSource is the read side of the override store.
type OverrideSource interface {
	Get(path string) model.TrustStatus
}

// ClassifierOptions wires a Classifier. Nil fields get defaults: a fresh
// cache, no overrides, the platform resolver, SHA-256 and the platform
// verifier with no publishers.
type ClassifierOptions struct {
	Cache           *Cache
	Overrides       OverrideSource
	Resolver        netstat.ProcessResolver
	Hasher          Hasher
	Verifier        Verifier
	VendorFragments []string
	Logger          *logging.Logger
}

// Classifier runs the trust pipeline for a connection or a bare path.
type Classifier struct {
	cache     *Cache
	overrides OverrideSource
	resolver  netstat.ProcessResolver
	hasher    Hasher
	verifier  Verifier
	vendors   []string
	logger    *logging.Logger
}

type noOverrides struct{}

func (noOverrides) Get(string) model.TrustStatus { return model.TrustUnknown }

// NewClassifier creates a Classifier.
func NewClassifier(opts ClassifierOptions) *Classifier {
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("trust")
	}
	if opts.Cache == nil {
		opts.Cache = NewCache(model.MaxCacheEntries)
	}
	if opts.Overrides == nil {
		opts.Overrides = noOverrides{}
	}
	if opts.Resolver == nil {
		opts.Resolver = netstat.NewResolver(opts.Logger)
	}
	if opts.Hasher == nil {
		opts.Hasher = SHA256Hasher{}
	}
	if opts.Verifier == nil {
		opts.Verifier = NewPlatformVerifier(nil)
	}
	if opts.VendorFragments == nil {
		opts.VendorFragments = DefaultVendorFragments
	}
	return &Classifier{
		cache:     opts.Cache,
		overrides: opts.Overrides,
		resolver:  opts.Resolver,
		hasher:    opts.Hasher,
		verifier:  opts.Verifier,
		vendors:   opts.VendorFragments,
		logger:    opts.Logger,
	}
}

// Cache returns the classifier's cache.
func (c *Classifier) Cache() *Cache { return c.cache }

// Override returns the manual status recorded for path, if any.
func (c *Classifier) Override(path string) model.TrustStatus {
	return c.overrides.Get(path)
}

// Classify resolves the executable behind conn and classifies it.
func (c *Classifier) Classify(ctx context.Context, conn model.Connection) Result {
	path := conn.ProcessPath
	if path == "" {
		path = c.resolver.Resolve(ctx, conn.PID).Path
	}
	if path == "" {
		return Result{Hash: model.HashNA, Status: model.TrustUnknown, Source: SourceNone}
	}
	if conn.IsSystemProcess() {
		return Result{Path: path, Hash: model.HashNA, Status: model.TrustMicrosoftSigned, Source: SourceSystem}
	}
	return c.ClassifyPath(ctx, path)
}

// ClassifyPath classifies an executable by path.
func (c *Classifier) ClassifyPath(ctx context.Context, path string) Result {
	if path == "" {
		return Result{Hash: model.HashNA, Status: model.TrustUnknown, Source: SourceNone}
	}

	if o := c.overrides.Get(path); o != model.TrustUnknown {
		hash := ""
		if e, ok := c.cache.Lookup(path); ok {
			hash = e.Hash
		} else {
			hash = c.hash(ctx, path)
		}
		return Result{Path: path, Hash: hash, Status: o, Source: SourceOverride}
	}

	if e, ok := c.cache.Lookup(path); ok {
		return Result{Path: path, Hash: e.Hash, Status: e.Status, Source: SourceCache}
	}

	res := Result{Path: path, Hash: c.hash(ctx, path), Source: SourceComputed}
	res.Status, res.Signer = c.verify(ctx, path)
	c.cache.Insert(path, res.Hash, res.Status)
	return res
}

func (c *Classifier) hash(ctx context.Context, path string) string {
	h, err := c.hasher.Hash(ctx, path)
	if err != nil {
		c.logger.Debug("hash failed", "path", path, "error", err)
		return model.HashError
	}
	return h
}

func (c *Classifier) verify(ctx context.Context, path string) (model.TrustStatus, string) {
	sig, err := c.verifier.Verify(ctx, path)
	switch {
	case err == nil:
		if isVendor(sig.Signer, c.vendors) {
			return model.TrustMicrosoftSigned, sig.Signer
		}
		return model.TrustVerifiedSigned, sig.Signer
	case stderrors.Is(err, ErrNoSignature):
		return model.TrustUnsigned, ""
	case stderrors.Is(err, ErrDistrusted):
		return model.TrustInvalidSignature, ""
	default:
		c.logger.Warn("signature verification failed", "path", path, "error", err)
		return model.TrustVerificationError, ""
	}
}
