package filestore

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type revision struct {
	content []byte
	version string
	message string
}

// MemoryStore keeps files and their revision history in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	files  map[string][]revision
	tracer trace.Tracer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:  make(map[string][]revision),
		tracer: otel.Tracer("memberledger/filestore"),
	}
}

func (s *MemoryStore) Get(ctx context.Context, path string) (*File, error) {
	_, span := s.tracer.Start(ctx, "filestore.memory.get",
		trace.WithAttributes(attribute.String("file.path", path)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	revs, ok := s.files[path]
	if !ok {
		return nil, ErrNotFound
	}
	head := revs[len(revs)-1]
	return &File{
		Path:    path,
		Content: append([]byte(nil), head.content...),
		Version: head.version,
	}, nil
}

func (s *MemoryStore) Put(ctx context.Context, path string, content []byte, message, expectedVersion string) (string, error) {
	_, span := s.tracer.Start(ctx, "filestore.memory.put",
		trace.WithAttributes(
			attribute.String("file.path", path),
			attribute.String("expected.version", expectedVersion),
		))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	revs, exists := s.files[path]
	switch {
	case expectedVersion == "" && exists:
		span.SetAttributes(attribute.Bool("conflict.detected", true))
		return "", ErrVersionMismatch
	case expectedVersion != "" && (!exists || revs[len(revs)-1].version != expectedVersion):
		span.SetAttributes(attribute.Bool("conflict.detected", true))
		return "", ErrVersionMismatch
	}

	version := ContentVersion(content)
	s.files[path] = append(revs, revision{
		content: append([]byte(nil), content...),
		version: version,
		message: message,
	})
	return version, nil
}

// History returns the change messages recorded for path, oldest first. It
// lets tests and local runs inspect what the ledger's writers committed.
func (s *MemoryStore) History(path string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	revs := s.files[path]
	out := make([]string, 0, len(revs))
	for _, r := range revs {
		out = append(out, r.message)
	}
	return out
}
