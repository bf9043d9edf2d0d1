// Package directory implements the identity directory: usernames, their
// stable hashes, and the keys and storage addresses published under each
// hash. Records are immutable once written.
package directory

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gezibash/arc-ledger/internal/kvstore/physical"
	"github.com/gezibash/arc-ledger/internal/observability"
	arcerrors "github.com/gezibash/arc-ledger/pkg/errors"
	"github.com/gezibash/arc-ledger/pkg/identity"
	"github.com/gezibash/arc-ledger/pkg/logging"
)

// DefaultCacheSize is the number of signing keys kept in memory.
const DefaultCacheSize = 1024

var (
	ErrUserNotFound    = fmt.Errorf("user %w", arcerrors.ErrNotFound)
	ErrKeyNotFound     = fmt.Errorf("key %w", arcerrors.ErrNotFound)
	ErrAddressNotFound = fmt.Errorf("storage address %w", arcerrors.ErrNotFound)
	ErrUserExists      = fmt.Errorf("user %w", arcerrors.ErrAlreadyExists)
	ErrKeyExists       = fmt.Errorf("key %w", arcerrors.ErrAlreadyExists)
	ErrAddressExists   = fmt.Errorf("storage address %w", arcerrors.ErrAlreadyExists)
	ErrInvalidUsername = fmt.Errorf("username %w", arcerrors.ErrInvalidInput)
	ErrInvalidHash     = fmt.Errorf("hash %w", arcerrors.ErrInvalidInput)
	ErrInvalidKey      = fmt.Errorf("key %w", arcerrors.ErrInvalidInput)
	ErrInvalidAddress  = fmt.Errorf("storage address %w", arcerrors.ErrInvalidInput)
)

const (
	prefixUser    = "user/"
	prefixSignKey = "signkey/"
	prefixBoxKey  = "boxkey/"
	prefixAddr    = "addr/"
)

// Directory maps usernames to identity records held in a physical backend.
type Directory struct {
	store   physical.Backend
	cache   *lru.Cache[string, identity.PublicKey]
	metrics *observability.Metrics
	log     *logging.Logger
}

// Option configures a Directory.
type Option func(*Directory) error

// WithCacheSize sets the signing-key cache size. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(d *Directory) error {
		if n <= 0 {
			d.cache = nil
			return nil
		}
		c, err := lru.New[string, identity.PublicKey](n)
		if err != nil {
			return fmt.Errorf("directory cache: %w", err)
		}
		d.cache = c
		return nil
	}
}

// WithMetrics records directory operations on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(d *Directory) error {
		d.metrics = m
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(d *Directory) error {
		d.log = l.WithComponent("directory")
		return nil
	}
}

// New creates a Directory over store. The directory does not own store.
func New(store physical.Backend, opts ...Option) (*Directory, error) {
	d := &Directory{
		store: store,
		log:   logging.New(nil).WithComponent("directory"),
	}
	if err := WithCacheSize(DefaultCacheSize)(d); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func validName(s string) bool {
	return s != "" && !strings.ContainsAny(s, "/ \t\r\n")
}

// Register binds username to its stable hash.
func (d *Directory) Register(ctx context.Context, username, hash string) (err error) {
	op, ctx := observability.StartOperation(ctx, d.metrics, "directory.register")
	defer func() { op.End(err) }()

	if !validName(username) {
		return ErrInvalidUsername
	}
	if hash == "" {
		return ErrInvalidHash
	}
	log := d.log.WithUser(username)
	if err := d.store.PutIfAbsent(ctx, prefixUser+username, []byte(hash)); err != nil {
		if errors.Is(err, physical.ErrExists) {
			log.WarnContext(ctx, "username already registered")
			return ErrUserExists
		}
		return fmt.Errorf("register %s: %w", username, err)
	}
	log.InfoContext(ctx, "username registered")
	return nil
}

// PutSigningKey publishes the base64 Ed25519 signing key for hash.
func (d *Directory) PutSigningKey(ctx context.Context, hash, key string) (err error) {
	op, ctx := observability.StartOperation(ctx, d.metrics, "directory.put_signkey")
	defer func() { op.End(err) }()

	pk, err := identity.DecodeBase64PublicKey(key)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	if err := d.putOnce(ctx, prefixSignKey, hash, pk.Bytes, ErrKeyExists); err != nil {
		return err
	}
	d.log.WithPubkey("signkey", pk).DebugContext(ctx, "signing key published", "hash", hash)
	return nil
}

// PutBoxingKey publishes the base64 X25519 boxing key for hash.
func (d *Directory) PutBoxingKey(ctx context.Context, hash, key string) (err error) {
	op, ctx := observability.StartOperation(ctx, d.metrics, "directory.put_boxkey")
	defer func() { op.End(err) }()

	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(key))
	if err != nil || len(raw) != 32 {
		return fmt.Errorf("%w: boxing key must be 32 bytes of standard base64", ErrInvalidKey)
	}
	return d.putOnce(ctx, prefixBoxKey, hash, raw, ErrKeyExists)
}

// PutStorageAddress publishes the content-storage address for hash.
func (d *Directory) PutStorageAddress(ctx context.Context, hash, addr string) (err error) {
	op, ctx := observability.StartOperation(ctx, d.metrics, "directory.put_addr")
	defer func() { op.End(err) }()

	if strings.TrimSpace(addr) == "" {
		return ErrInvalidAddress
	}
	return d.putOnce(ctx, prefixAddr, hash, []byte(addr), ErrAddressExists)
}

func (d *Directory) putOnce(ctx context.Context, prefix, hash string, value []byte, exists error) error {
	if hash == "" {
		return ErrInvalidHash
	}
	if err := d.store.PutIfAbsent(ctx, prefix+hash, value); err != nil {
		if errors.Is(err, physical.ErrExists) {
			return exists
		}
		return fmt.Errorf("put %s: %w", strings.TrimSuffix(prefix, "/"), err)
	}
	return nil
}

// Hash returns the stable hash registered for username.
func (d *Directory) Hash(ctx context.Context, username string) (string, error) {
	v, err := d.store.Get(ctx, prefixUser+username)
	if errors.Is(err, physical.ErrNotFound) {
		return "", ErrUserNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", username, err)
	}
	return string(v), nil
}

// IsRegistered reports whether username has been registered.
func (d *Directory) IsRegistered(ctx context.Context, username string) (bool, error) {
	_, err := d.Hash(ctx, username)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrUserNotFound):
		return false, nil
	default:
		return false, err
	}
}

// SigningKey resolves the signing key of username. Found keys are cached;
// they can never change once published.
func (d *Directory) SigningKey(ctx context.Context, username string) (identity.PublicKey, error) {
	if d.cache != nil {
		if pk, ok := d.cache.Get(username); ok {
			return pk, nil
		}
	}
	raw, err := d.lookup(ctx, username, prefixSignKey, ErrKeyNotFound)
	if err != nil {
		return identity.PublicKey{}, err
	}
	pk, err := identity.NewPublicKey(identity.AlgEd25519, raw)
	if err != nil {
		return identity.PublicKey{}, fmt.Errorf("stored signing key for %s: %w", username, err)
	}
	if d.cache != nil {
		d.cache.Add(username, pk)
	}
	return pk, nil
}

// BoxingKey returns the X25519 boxing key of username. A user who published
// only a signing key gets the Montgomery form of that key.
func (d *Directory) BoxingKey(ctx context.Context, username string) ([]byte, error) {
	raw, err := d.lookup(ctx, username, prefixBoxKey, ErrKeyNotFound)
	if err == nil {
		return raw, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}
	pk, serr := d.SigningKey(ctx, username)
	if serr != nil {
		return nil, err
	}
	return BoxingKeyFromSigningKey(pk)
}

// StorageAddress returns the content-storage address of username.
func (d *Directory) StorageAddress(ctx context.Context, username string) (string, error) {
	raw, err := d.lookup(ctx, username, prefixAddr, ErrAddressNotFound)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (d *Directory) lookup(ctx context.Context, username, prefix string, missing error) ([]byte, error) {
	hash, err := d.Hash(ctx, username)
	if err != nil {
		return nil, err
	}
	v, err := d.store.Get(ctx, prefix+hash)
	if errors.Is(err, physical.ErrNotFound) {
		return nil, missing
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", username, err)
	}
	return v, nil
}

// BoxingKeyFromSigningKey converts an Ed25519 public key to its X25519 form.
func BoxingKeyFromSigningKey(pk identity.PublicKey) ([]byte, error) {
	if pk.Algo != identity.AlgEd25519 {
		return nil, fmt.Errorf("%w: %q", identity.ErrUnknownAlgorithm, pk.Algo)
	}
	p, err := new(edwards25519.Point).SetBytes(pk.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	return p.BytesMontgomery(), nil
}
