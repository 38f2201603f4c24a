// Package store keeps the most recently used portfolios for the command
// line and HTTP callers. The backtest pipeline never reads it.
package store

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"portfolio-backtest/internal/config"
	"portfolio-backtest/internal/model"
)

// DefaultCapacity is how many portfolios are kept when none is configured.
const DefaultCapacity = 5

var ErrNotFound = errors.New("portfolio not found")

// Entry is one saved portfolio.
type Entry struct {
	ID        string          `json:"id"`
	SavedAt   time.Time       `json:"saved_at"`
	Benchmark string          `json:"benchmark,omitempty"`
	StartDate string          `json:"start_date,omitempty"`
	Portfolio model.Portfolio `json:"portfolio"`
}

// Label is a short description for pickers, e.g.
// "2024-05-01 14:03 - AAPL, MSFT, GOOGL +2 more".
func (e Entry) Label() string {
	syms := e.Portfolio.Symbols()
	shown := syms
	if len(shown) > 3 {
		shown = shown[:3]
	}
	label := strings.Join(shown, ", ")
	if extra := len(syms) - len(shown); extra > 0 {
		label += fmt.Sprintf(" +%d more", extra)
	}
	return e.SavedAt.Format("2006-01-02 15:04") + " - " + label
}

// Store keeps the N most recently saved portfolios.
type Store interface {
	// Save assigns an ID and timestamp and evicts the oldest entries
	// beyond capacity.
	Save(ctx context.Context, e Entry) (Entry, error)
	// Recent lists entries, newest first.
	Recent(ctx context.Context) ([]Entry, error)
	Get(ctx context.Context, id string) (Entry, error)
	Close() error
}

// Open returns a SQLite store when cfg.Path is set, otherwise an
// in-memory one.
func Open(cfg config.StoreConfig) (Store, error) {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if cfg.Path == "" {
		return NewMemory(capacity), nil
	}
	return NewSQLite(cfg.Path, capacity)
}

var (
	idMu sync.Mutex
	mono io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// newID returns a ULID. IDs sort by creation time, which is the store's
// recency order.
func newID(now time.Time) (string, error) {
	idMu.Lock()
	defer idMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(now), mono)
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id.String(), nil
}

func stamp(e Entry, now time.Time) (Entry, error) {
	id, err := newID(now)
	if err != nil {
		return Entry{}, err
	}
	e.ID = id
	e.SavedAt = now.UTC()
	e.Portfolio = e.Portfolio.Normalized()
	e.Benchmark = model.NormalizeSymbol(e.Benchmark)
	return e, nil
}
