package cartengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/angelmondragon/storefront-backend/pkg/types"
)

// Snapshot is what survives a restart for a guest shopper.
type Snapshot struct {
	GuestID string           `json:"guest_id"`
	Items   []types.CartItem `json:"items"`
}

// LocalStore is the device-side durable key-value slot for the guest cart.
// Load returns nil, nil when nothing has been saved.
type LocalStore interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snapshot Snapshot) error
	Clear(ctx context.Context) error
}

// MemoryStore keeps the snapshot in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	snapshot *Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return nil, nil
	}
	out := Snapshot{GuestID: m.snapshot.GuestID, Items: types.CloneItems(m.snapshot.Items)}
	return &out, nil
}

func (m *MemoryStore) Save(_ context.Context, snapshot Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = &Snapshot{GuestID: snapshot.GuestID, Items: types.CloneItems(snapshot.Items)}
	return nil
}

func (m *MemoryStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = nil
	return nil
}

// FileStore keeps the snapshot as a JSON file. Writes go through a temp file
// and rename so a crash never leaves a torn document.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Load(context.Context) (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cart snapshot: %w", err)
	}
	var snapshot Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("decode cart snapshot: %w", err)
	}
	snapshot.Items = types.CloneItems(snapshot.Items)
	return &snapshot, nil
}

func (f *FileStore) Save(_ context.Context, snapshot Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot.Items = types.CloneItems(snapshot.Items)
	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cart snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".cart-*.json")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write cart snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close cart snapshot: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}

func (f *FileStore) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cart snapshot: %w", err)
	}
	return nil
}
