// Package cache keeps analysis summaries keyed by the content of the unit
// and of the type registry that analyzed it, so unchanged units are not
// analyzed twice.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/stackflow/types"
	"github.com/chazu/stackflow/wire"
)

var log = commonlog.GetLogger("stackflow.cache")

// ErrClosed is returned by a store used after Close.
var ErrClosed = errors.New("cache: store is closed")

// Key addresses one summary.
type Key [32]byte

func (k Key) String() string { return hex.EncodeToString(k[:]) }

// Short returns the first 12 hex digits, for logs.
func (k Key) Short() string { return k.String()[:12] }

// KeyFor hashes the canonical encoding of u together with the registry
// fingerprint.
func KeyFor(u *wire.Unit, reg *types.Registry) (Key, error) {
	data, err := wire.MarshalUnit(u)
	if err != nil {
		return Key{}, fmt.Errorf("cache: key for %s: %w", u.Name, err)
	}
	fp := reg.Fingerprint()
	h := sha256.New()
	h.Write(fp[:])
	h.Write(data)
	var k Key
	copy(k[:], h.Sum(nil))
	return k, nil
}

// Store is a summary store. Implementations are safe for concurrent use.
type Store interface {
	// Get returns the summary under k; ok is false on a miss.
	Get(ctx context.Context, k Key) (s *wire.Summary, ok bool, err error)
	Put(ctx context.Context, k Key, s *wire.Summary) error
	Close() error
}
