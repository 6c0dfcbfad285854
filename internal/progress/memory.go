package progress

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process memory. It satisfies the same contract
// as the durable backends and is used by tests and explicit memory mode.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
	byFile  map[string]string
	now     func() time.Time
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		byFile:  make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrGet implements Store.
func (m *MemoryStore) CreateOrGet(_ context.Context, fileName string, meta map[string]any) (string, error) {
	key, err := validateKey(fileName)
	if err != nil {
		return "", err
	}
	doc, err := normalizeDocument(meta)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byFile[key]; ok {
		return id, nil
	}
	if doc == nil {
		doc = map[string]any{}
	}
	id := uuid.NewString()
	m.records[id] = newRecord(id, key, doc, m.now())
	m.byFile[key] = id
	return id, nil
}

// UpdateStage implements Store.
func (m *MemoryStore) UpdateStage(_ context.Context, id string, stage Stage, success bool, details map[string]any) error {
	doc, err := normalizeDocument(details)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.Stages[stage] = success
	if doc != nil {
		rec.Details[stage] = doc
	}
	rec.UpdatedAt = m.now()
	return nil
}

// AppendSegment implements Store.
func (m *MemoryStore) AppendSegment(_ context.Context, id string, seg Segment) error {
	seg = prepareSegment(seg)
	meta, err := normalizeDocument(seg.Metadata)
	if err != nil {
		return err
	}
	seg.Metadata = meta
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.Segments = append(rec.Segments, seg)
	rec.UpdatedAt = m.now()
	return nil
}

// AppendAugmentation implements Store.
func (m *MemoryStore) AppendAugmentation(_ context.Context, id string, aug Augmentation) error {
	aug = prepareAugmentation(aug)
	params, err := normalizeDocument(aug.Parameters)
	if err != nil {
		return err
	}
	aug.Parameters = params
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.Augmentations = append(rec.Augmentations, aug)
	rec.UpdatedAt = m.now()
	return nil
}

// FindByFileName implements Store.
func (m *MemoryStore) FindByFileName(_ context.Context, fileName string) (*Record, error) {
	key := Key(fileName)
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byFile[key]
	if !ok {
		return nil, nil
	}
	return cloneRecord(m.records[id]), nil
}

// FindBySegmentFile implements Store.
func (m *MemoryStore) FindBySegmentFile(_ context.Context, fileName string) (*Record, error) {
	key := Key(fileName)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.sortedLocked() {
		if rec.HasSegment(key) {
			return cloneRecord(rec), nil
		}
	}
	return nil, nil
}

// FindByStage implements Store.
func (m *MemoryStore) FindByStage(_ context.Context, stage Stage, status bool) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.sortedLocked() {
		if rec.Stages[stage] == status {
			out = append(out, *cloneRecord(rec))
		}
	}
	return out, nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sorted := m.sortedLocked()
	out := make([]Record, 0, len(sorted))
	for _, rec := range sorted {
		out = append(out, *cloneRecord(rec))
	}
	return out, nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) sortedLocked() []*Record {
	out := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].File < out[j].File
	})
	return out
}

// cloneRecord deep-copies rec. Documents were normalized through JSON on the
// way in, so a second round trip yields an independent copy.
func cloneRecord(rec *Record) *Record {
	if rec == nil {
		return nil
	}
	out := *rec
	out.OriginalMetadata = cloneDocument(rec.OriginalMetadata)
	out.Stages = maps.Clone(rec.Stages)
	out.Details = make(map[Stage]map[string]any, len(rec.Details))
	for stage, doc := range rec.Details {
		out.Details[stage] = cloneDocument(doc)
	}
	out.Segments = slices.Clone(rec.Segments)
	for i := range out.Segments {
		out.Segments[i].Metadata = cloneDocument(out.Segments[i].Metadata)
	}
	out.Augmentations = slices.Clone(rec.Augmentations)
	for i := range out.Augmentations {
		out.Augmentations[i].Parameters = cloneDocument(out.Augmentations[i].Parameters)
	}
	return &out
}

func cloneDocument(doc map[string]any) map[string]any {
	cloned, err := normalizeDocument(doc)
	if err != nil {
		return maps.Clone(doc)
	}
	return cloned
}
