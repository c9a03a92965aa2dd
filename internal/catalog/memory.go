package catalog

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store, safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	books   map[int]Book
	records map[int64]FormatRecord
	nextID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:   make(map[int]Book),
		records: make(map[int64]FormatRecord),
	}
}

// PutBook inserts or replaces a book.
func (m *MemoryStore) PutBook(book Book) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[book.ID] = book
}

// AddFormat attaches a format record to a book and returns the record id.
func (m *MemoryStore) AddFormat(bookID int, format Format) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.records[m.nextID] = FormatRecord{ID: m.nextID, BookID: bookID, Format: format}
	return m.nextID
}

func (m *MemoryStore) Books(_ context.Context, filter Filter) ([]Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Book
	for _, b := range m.books {
		if len(filter.Languages) > 0 && !slices.Contains(filter.Languages, b.Language) {
			continue
		}
		if len(filter.OnlyBooks) > 0 && !slices.Contains(filter.OnlyBooks, b.ID) {
			continue
		}
		if len(filter.Mimes) > 0 && !m.hasMime(b.ID, filter.Mimes) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// hasMime does NOT take the lock; caller must hold m.mu.
func (m *MemoryStore) hasMime(bookID int, mimes []string) bool {
	for _, r := range m.records {
		if r.BookID == bookID && slices.Contains(mimes, r.Format.Mime) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) Book(_ context.Context, id int) (Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	if !ok {
		return Book{}, &CatalogError{Message: fmt.Sprintf("book %d", id), Cause: ErrCauseNotFound}
	}
	return b, nil
}

func (m *MemoryStore) FormatRecords(_ context.Context, bookID int) ([]FormatRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []FormatRecord
	for _, r := range m.records {
		if r.BookID == bookID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SetSourceURL(_ context.Context, recordID int64, sourceURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[recordID]
	if !ok {
		return &CatalogError{Message: fmt.Sprintf("format record %d", recordID), Cause: ErrCauseNotFound}
	}
	r.SourceURL = sourceURL
	m.records[recordID] = r
	return nil
}

func (m *MemoryStore) SetEtag(_ context.Context, bookID int, field EtagField, etag string) error {
	switch field {
	case EtagHTML, EtagEPUB, EtagCover:
	default:
		return &CatalogError{Message: fmt.Sprintf("unknown etag field %q", field), Cause: ErrCauseWriteFailure}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[bookID]
	if !ok {
		return &CatalogError{Message: fmt.Sprintf("book %d", bookID), Cause: ErrCauseNotFound}
	}
	switch field {
	case EtagHTML:
		b.HTMLEtag = etag
	case EtagEPUB:
		b.EpubEtag = etag
	case EtagCover:
		b.CoverEtag = etag
	}
	m.books[bookID] = b
	return nil
}
