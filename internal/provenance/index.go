package provenance

import (
	"path/filepath"
	"strings"
	"sync"
)

// Owner identifies the record a file belongs to.
type Owner struct {
	RecordID   string
	SourceFile string
	SpeakerID  string
}

// Index is a concurrency-safe map from file basename to Owner.
type Index struct {
	mu      sync.RWMutex
	entries map[string]Owner
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{entries: make(map[string]Owner)}
}

// Register records owner for file.
func (i *Index) Register(file string, owner Owner) {
	key := basename(file)
	if i == nil || key == "" || owner.RecordID == "" {
		return
	}
	i.mu.Lock()
	i.entries[key] = owner
	i.mu.Unlock()
}

// RegisterChild records child as derived from parent, inheriting the
// parent's owner. A non-empty speakerID replaces the inherited one. It
// reports false when parent is unknown.
func (i *Index) RegisterChild(child, parent, speakerID string) bool {
	owner, ok := i.Lookup(parent)
	if !ok {
		return false
	}
	if speakerID != "" {
		owner.SpeakerID = speakerID
	}
	i.Register(child, owner)
	return true
}

// Lookup returns the owner registered for file.
func (i *Index) Lookup(file string) (Owner, bool) {
	if i == nil {
		return Owner{}, false
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	owner, ok := i.entries[basename(file)]
	return owner, ok
}

// Len returns the number of registered files.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

func basename(file string) string {
	trimmed := strings.TrimSpace(file)
	if trimmed == "" {
		return ""
	}
	return filepath.Base(trimmed)
}
