package addressbook

import (
	"fmt"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/peterbourgon/diskv/v3"

	"scheduled_payments/internal/app/port"
	"scheduled_payments/internal/domain/entity"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultStorageKey names the single record holding the whole list.
const DefaultStorageKey = "scheduled-payments-favorites"

// Book is a persisted list of labelled addresses. Addresses compare case-insensitively
// and keep the casing they were first added with.
type Book struct {
	d      *diskv.Diskv
	key    string
	logger port.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries []entity.FavoriteEntry
}

var _ port.AddressBook = (*Book)(nil)

// Open loads the list stored under key in dir. A missing or unreadable record
// starts an empty list.
func Open(dir, key string, logger port.Logger) (*Book, error) {
	base, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("address book path %q: %w", dir, err)
	}
	if key == "" {
		key = DefaultStorageKey
	}
	b := &Book{
		d: diskv.New(diskv.Options{
			BasePath:     base,
			Transform:    func(string) []string { return []string{} },
			CacheSizeMax: 64 * 1024,
		}),
		key:     key,
		logger:  logger,
		now:     time.Now,
		entries: []entity.FavoriteEntry{},
	}
	b.load()
	return b, nil
}

func (b *Book) load() {
	if !b.d.Has(b.key) {
		return
	}
	data, err := b.d.Read(b.key)
	if err != nil {
		b.logger.Warn("Failed to read address book", "key", b.key, "error", err)
		return
	}
	var entries []entity.FavoriteEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		b.logger.Warn("Failed to parse address book, starting empty", "key", b.key, "error", err)
		return
	}
	if entries != nil {
		b.entries = entries
	}
	b.logger.Debug("Address book loaded", "count", len(b.entries))
}

// save persists next and makes it current. Callers hold the write lock.
func (b *Book) save(next []entity.FavoriteEntry) error {
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode address book: %w", err)
	}
	if err := b.d.Write(b.key, data); err != nil {
		return fmt.Errorf("failed to write address book: %w", err)
	}
	b.entries = next
	return nil
}

func (b *Book) indexOf(address string) int {
	for i, e := range b.entries {
		if strings.EqualFold(e.Address, address) {
			return i
		}
	}
	return -1
}

// Add appends address. An empty label becomes "Address N" with N the new size.
func (b *Book) Add(address, label string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.indexOf(address) >= 0 {
		return false, nil
	}
	if label == "" {
		label = fmt.Sprintf("Address %d", len(b.entries)+1)
	}
	next := append(b.snapshot(), entity.FavoriteEntry{
		Address:   address,
		Label:     label,
		CreatedAt: b.now().UnixMilli(),
	})
	if err := b.save(next); err != nil {
		return false, err
	}
	return true, nil
}

// Remove drops address if present.
func (b *Book) Remove(address string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexOf(address)
	if i < 0 {
		return nil
	}
	next := make([]entity.FavoriteEntry, 0, len(b.entries)-1)
	next = append(next, b.entries[:i]...)
	next = append(next, b.entries[i+1:]...)
	return b.save(next)
}

// UpdateLabel relabels address if present.
func (b *Book) UpdateLabel(address, label string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.indexOf(address)
	if i < 0 {
		return nil
	}
	next := b.snapshot()
	next[i].Label = label
	return b.save(next)
}

func (b *Book) IsKnown(address string) bool {
	if address == "" {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.indexOf(address) >= 0
}

// List returns the entries in insertion order.
func (b *Book) List() []entity.FavoriteEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshot()
}

// snapshot copies the entries. Callers hold the lock.
func (b *Book) snapshot() []entity.FavoriteEntry {
	out := make([]entity.FavoriteEntry, len(b.entries))
	copy(out, b.entries)
	return out
}
