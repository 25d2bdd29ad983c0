// Package memory implements an in-memory blob Store for tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"trailvision/internal/blob/core"
)

type blobEntry struct {
	info   core.Info
	data   []byte
	public bool
}

// Store implements core.Store backed by process memory. Intended for tests.
// PresignURL mints pseudo URLs carrying their expiry as a query parameter so
// callers can exercise the signed-reference lifecycle without a real backend.
type Store struct {
	mu   sync.RWMutex
	objs map[string]blobEntry
	now  func() time.Time
}

// New returns an in-memory blob store.
func New() *Store { return &Store{objs: make(map[string]blobEntry), now: time.Now} }

// SetClock overrides the time source used for presigned expiries (tests).
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Driver returns the blob driver identifier.
func (s *Store) Driver() core.Driver { return core.DriverMemory }

// Put stores a blob, overwriting any existing object at key.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return core.Info{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	info := core.Info{
		Key:          key,
		Size:         int64(len(b)),
		ContentType:  opts.ContentType,
		CacheControl: opts.CacheControl,
		Metadata:     cloneMetadata(opts.Metadata),
		LastModified: now,
	}
	prev := s.objs[key]
	s.objs[key] = blobEntry{info: info, data: b, public: prev.public}
	return info, nil
}

// Get returns blob metadata and a read closer to its content.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, nil, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	dataCopy := make([]byte, len(obj.data))
	copy(dataCopy, obj.data)
	infoCopy := obj.info
	infoCopy.Metadata = cloneMetadata(infoCopy.Metadata)
	return infoCopy, io.NopCloser(bytes.NewReader(dataCopy)), nil
}

// Head returns blob metadata only.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	s.mu.RLock()
	obj, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return core.Info{}, fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	infoCopy := obj.info
	infoCopy.Metadata = cloneMetadata(infoCopy.Metadata)
	return infoCopy, nil
}

// Delete removes the blob returning true if it existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objs[key]
	if ok {
		delete(s.objs, key)
	}
	return ok, nil
}

// List returns all blobs matching prefix.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Info, 0, len(s.objs))
	for k, v := range s.objs {
		if prefix == "" || (len(k) >= len(prefix) && k[:len(prefix)] == prefix) {
			inf := v.info
			inf.Metadata = cloneMetadata(inf.Metadata)
			out = append(out, inf)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL returns a pseudo signed URL whose X-Expires query carries the
// unix expiry instant. Missing keys error with core.ErrNotFound so the
// refresh path behaves like a real backend.
func (s *Store) PresignURL(_ context.Context, key string, opts core.SignedURLOptions) (string, error) {
	if opts.Method != "" && opts.Method != "GET" && opts.Method != "get" {
		return "", core.ErrUnsupported
	}
	s.mu.RLock()
	_, ok := s.objs[key]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	expiry := opts.Expiry
	if expiry <= 0 {
		expiry = core.DefaultSignedURLExpiry
	}
	expires := s.now().Add(expiry).UTC()
	u := url.URL{
		Scheme:   "memory",
		Host:     "blob.local",
		Path:     "/" + key,
		RawQuery: "X-Expires=" + strconv.FormatInt(expires.Unix(), 10),
	}
	return u.String(), nil
}

// SetPublicRead flags the object as world readable.
func (s *Store) SetPublicRead(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objs[key]
	if !ok {
		return fmt.Errorf("blob %s: %w", key, core.ErrNotFound)
	}
	obj.public = true
	s.objs[key] = obj
	return nil
}

// IsPublic reports whether SetPublicRead was called for key (tests).
func (s *Store) IsPublic(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.objs[key].public
}

// PublicURL returns a stable pseudo address for the object.
func (s *Store) PublicURL(key string) string {
	return (&url.URL{Scheme: "memory", Host: "blob.local", Path: "/" + key}).String()
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
