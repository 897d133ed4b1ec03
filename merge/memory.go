package merge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps merge outputs in memory, keyed by output filename and
// indexed by the record they were produced for. Previews and tests use it in
// place of a directory.
type MemoryStore struct {
	mu       sync.RWMutex
	outputs  map[string]storedOutput
	byRecord map[string][]string
	Now      func() time.Time
}

type storedOutput struct {
	payload []byte
	meta    ArtifactMeta
}

var _ ArtifactStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty output store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		outputs:  make(map[string]storedOutput),
		byRecord: make(map[string][]string),
		Now:      time.Now,
	}
}

// Put stores an output under its filename. A later output with the same
// filename replaces the earlier one and moves to its record.
func (s *MemoryStore) Put(ctx context.Context, key string, r io.Reader, meta ArtifactMeta) (ArtifactRef, error) {
	if s == nil {
		return ArtifactRef{}, NewError(KindInternal, "output store is nil", nil)
	}
	if err := ctx.Err(); err != nil {
		return ArtifactRef{}, err
	}
	if key == "" {
		return ArtifactRef{}, NewError(KindValidation, "output filename is required", nil)
	}
	if r == nil {
		return ArtifactRef{}, NewError(KindValidation, fmt.Sprintf("output %q has no content", key), nil)
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return ArtifactRef{}, NewExportError(meta.RecordID, fmt.Sprintf("reading output %q failed", key), err)
	}

	meta.Size = int64(len(payload))
	if meta.Filename == "" {
		meta.Filename = path.Base(key)
	}
	if meta.ContentType == "" {
		meta.ContentType = ContentType(Format(strings.ToLower(strings.TrimPrefix(path.Ext(key), "."))))
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if previous, ok := s.outputs[key]; ok {
		s.unindex(previous.meta.RecordID, key)
	}
	s.outputs[key] = storedOutput{payload: payload, meta: meta}
	s.byRecord[meta.RecordID] = append(s.byRecord[meta.RecordID], key)
	return ArtifactRef{Key: key, Meta: meta}, nil
}

// Open returns a reader over a stored output.
func (s *MemoryStore) Open(ctx context.Context, key string) (io.ReadCloser, ArtifactMeta, error) {
	if s == nil {
		return nil, ArtifactMeta{}, NewError(KindInternal, "output store is nil", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, ArtifactMeta{}, err
	}
	s.mu.RLock()
	out, ok := s.outputs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ArtifactMeta{}, NewError(KindNotFound, fmt.Sprintf("output %q not found", key), nil)
	}
	return io.NopCloser(bytes.NewReader(out.payload)), out.meta, nil
}

// Delete removes an output. Unknown filenames are ignored.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if s == nil {
		return NewError(KindInternal, "output store is nil", nil)
	}
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if out, ok := s.outputs[key]; ok {
		s.unindex(out.meta.RecordID, key)
		delete(s.outputs, key)
	}
	return nil
}

// Keys returns the stored filenames in sorted order.
func (s *MemoryStore) Keys() []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.outputs))
	for key := range s.outputs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ForRecord returns the outputs written for a record identifier, in the
// order they were stored.
func (s *MemoryStore) ForRecord(recordID string) []ArtifactRef {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.byRecord[recordID]
	refs := make([]ArtifactRef, 0, len(keys))
	for _, key := range keys {
		refs = append(refs, ArtifactRef{Key: key, Meta: s.outputs[key].meta})
	}
	return refs
}

func (s *MemoryStore) unindex(recordID, key string) {
	keys := s.byRecord[recordID]
	for i, k := range keys {
		if k == key {
			keys = append(keys[:i], keys[i+1:]...)
			break
		}
	}
	if len(keys) == 0 {
		delete(s.byRecord, recordID)
		return
	}
	s.byRecord[recordID] = keys
}

func (s *MemoryStore) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
