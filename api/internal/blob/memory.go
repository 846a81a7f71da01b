package blob

import (
	"context"
	"sync"
)

var _ Store = (*MemoryStore)(nil)

type memObject struct {
	data        []byte
	contentType string
}

// MemoryStore keeps objects in process memory. It backs local development
// (STORAGE_BACKEND=memory) and tests.
type MemoryStore struct {
	baseURL string

	mu      sync.RWMutex
	buckets map[string]map[string]memObject
}

func NewMemoryStore(publicBaseURL string) *MemoryStore {
	return &MemoryStore{
		baseURL: publicBaseURL,
		buckets: map[string]map[string]memObject{},
	}
}

func (s *MemoryStore) Upload(_ context.Context, data []byte, name, contentType, bucket string) (StoredImage, error) {
	bucket = BucketOrDefault(bucket)
	if err := ValidName(name); err != nil {
		return StoredImage{}, &StoreError{Op: "upload", Bucket: bucket, Name: name, Err: err}
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		b = map[string]memObject{}
		s.buckets[bucket] = b
	}
	if _, exists := b[name]; exists {
		return StoredImage{}, &StoreError{Op: "upload", Bucket: bucket, Name: name, Err: ErrExists}
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b[name] = memObject{data: cp, contentType: contentType}
	return StoredImage{Name: name, PublicURL: s.PublicURL(name, bucket)}, nil
}

// Put stores an object without the image-name rules, e.g. hidden files.
func (s *MemoryStore) Put(name, bucket string, data []byte) {
	bucket = BucketOrDefault(bucket)
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buckets[bucket]
	if !ok {
		b = map[string]memObject{}
		s.buckets[bucket] = b
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b[name] = memObject{data: cp}
}

func (s *MemoryStore) List(_ context.Context, bucket string) ([]Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.buckets[BucketOrDefault(bucket)]
	names := make([]string, 0, len(b))
	for n := range b {
		names = append(names, n)
	}
	return FilterImages(names), nil
}

func (s *MemoryStore) Delete(_ context.Context, name, bucket string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.buckets[BucketOrDefault(bucket)]
	if _, ok := b[name]; !ok {
		return false, nil
	}
	delete(b, name)
	return true, nil
}

func (s *MemoryStore) Download(_ context.Context, name, bucket string) ([]byte, string, error) {
	bucket = BucketOrDefault(bucket)
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.buckets[bucket][name]
	if !ok {
		return nil, "", &StoreError{Op: "download", Bucket: bucket, Name: name, Err: ErrNotFound}
	}
	return obj.data, obj.contentType, nil
}

func (s *MemoryStore) PublicURL(name, bucket string) string {
	return PublicURL(s.baseURL, bucket, name)
}
