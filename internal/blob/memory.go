package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps objects in process memory. It suits state that lives no
// longer than one run, such as the artifact bundles passed between jobs.
//
// Objects are stored in a sync.Map: keys are written once and read many
// times by concurrent jobs, which is the access pattern sync.Map is built
// for.
type MemoryStore struct {
	objects sync.Map // Key: object key, Value: *memoryObject
	now     func() time.Time
}

type memoryObject struct {
	data []byte
	obj  Object
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64, metadata map[string]string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(&ctxReader{ctx: ctx, r: r})
	if err != nil {
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("write object %s: short write: wrote %d of %d bytes", key, len(data), size)
	}
	s.objects.Store(key, &memoryObject{
		data: data,
		obj: Object{
			Key:      key,
			Size:     int64(len(data)),
			Modified: s.now(),
			Metadata: normalizeMetadata(metadata),
		},
	})
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, Object, error) {
	mo, err := s.load(key)
	if err != nil {
		return nil, Object{}, err
	}
	return io.NopCloser(bytes.NewReader(mo.data)), mo.copyObject(), nil
}

// Stat implements Store.
func (s *MemoryStore) Stat(ctx context.Context, key string) (Object, error) {
	mo, err := s.load(key)
	if err != nil {
		return Object{}, err
	}
	return mo.copyObject(), nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	s.objects.Range(func(k, v any) bool {
		if strings.HasPrefix(k.(string), prefix) {
			out = append(out, v.(*memoryObject).copyObject())
		}
		return ctx.Err() == nil
	})
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list objects with prefix %q: %w", prefix, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete implements Store. Deleting a missing key returns ErrNotFound.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if _, loaded := s.objects.LoadAndDelete(key); !loaded {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return nil
}

func (s *MemoryStore) load(key string) (*memoryObject, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	v, ok := s.objects.Load(key)
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return v.(*memoryObject), nil
}

func (m *memoryObject) copyObject() Object {
	o := m.obj
	o.Metadata = make(map[string]string, len(m.obj.Metadata))
	for k, v := range m.obj.Metadata {
		o.Metadata[k] = v
	}
	return o
}
