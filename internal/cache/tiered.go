package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"
)

// Status is reported in envelope metadata.
type Status string

const (
	StatusHit    Status = "hit"
	StatusMiss   Status = "miss"
	StatusBypass Status = "bypass"
)

var errCorruptEntry = errors.New("cache entry checksum mismatch")

// entry is the persisted form of a value; Sum guards against torn or foreign writes.
type entry struct {
	Value     []byte   `cbor:"1,keyasint"`
	Sum       [32]byte `cbor:"2,keyasint"`
	ExpiresAt int64    `cbor:"3,keyasint"`
}

// Tiered reads the local tier first, then the persistent tier, and writes
// both. Values are cbor encoded.
type Tiered struct {
	local      *gocache.Cache
	persistent Persistent
	enabled    bool
	log        *logrus.Entry
}

func NewTiered(persistent Persistent, log *logrus.Entry) *Tiered {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Tiered{
		local:      gocache.New(5*time.Minute, 10*time.Minute),
		persistent: persistent,
		enabled:    true,
		log:        log,
	}
}

// Disabled returns a cache that always misses and never stores.
func Disabled() *Tiered {
	return &Tiered{log: logrus.NewEntry(logrus.StandardLogger())}
}

func (t *Tiered) Enabled() bool { return t != nil && t.enabled }

// Get decodes the cached value into out. Persistent tier errors are logged
// and treated as misses.
func (t *Tiered) Get(ctx context.Context, ns Namespace, key string, out any) (Status, error) {
	if !t.Enabled() {
		return StatusBypass, nil
	}
	full := StorageKey(ns, key)
	if raw, ok := t.local.Get(full); ok {
		if err := cbor.Unmarshal(raw.([]byte), out); err == nil {
			return StatusHit, nil
		}
		t.local.Delete(full)
	}
	if t.persistent == nil {
		return StatusMiss, nil
	}
	stored, ok, err := t.persistent.Get(ctx, ns, key)
	if err != nil {
		t.log.WithError(err).WithField("key", full).Warn("persistent cache read failed")
		return StatusMiss, nil
	}
	if !ok {
		return StatusMiss, nil
	}
	value, expiresAt, err := openEntry(stored)
	if err != nil {
		t.log.WithError(err).WithField("key", full).Warn("discarding cache entry")
		return StatusMiss, nil
	}
	if err := cbor.Unmarshal(value, out); err != nil {
		return StatusMiss, nil
	}
	if remaining := time.Until(time.UnixMilli(expiresAt)); remaining > 0 {
		t.local.Set(full, value, remaining)
	}
	return StatusHit, nil
}

func (t *Tiered) Set(ctx context.Context, ns Namespace, key string, value any, ttl time.Duration) error {
	if !t.Enabled() {
		return nil
	}
	raw, err := cbor.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache value: %w", err)
	}
	t.local.Set(StorageKey(ns, key), raw, ttl)
	if t.persistent == nil {
		return nil
	}
	sealed, err := sealEntry(raw, time.Now().Add(ttl))
	if err != nil {
		return err
	}
	return t.persistent.Set(ctx, ns, key, sealed, ttl)
}

func (t *Tiered) Close() error {
	if t == nil || t.persistent == nil {
		return nil
	}
	return t.persistent.Close()
}

func sealEntry(value []byte, expiresAt time.Time) ([]byte, error) {
	out, err := cbor.Marshal(entry{Value: value, Sum: blake3.Sum256(value), ExpiresAt: expiresAt.UnixMilli()})
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}
	return out, nil
}

func openEntry(raw []byte) ([]byte, int64, error) {
	var e entry
	if err := cbor.Unmarshal(raw, &e); err != nil {
		return nil, 0, fmt.Errorf("decode cache entry: %w", err)
	}
	sum := blake3.Sum256(e.Value)
	if !bytes.Equal(sum[:], e.Sum[:]) {
		return nil, 0, errCorruptEntry
	}
	return e.Value, e.ExpiresAt, nil
}
