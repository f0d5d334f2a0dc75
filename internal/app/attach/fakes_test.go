package attach

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

type fakeStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	deletes map[string]int
	failDel map[string]bool
	failPut bool
	getHook func(key string)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		blobs:   make(map[string][]byte),
		deletes: make(map[string]int),
		failDel: make(map[string]bool),
	}
}

func (s *fakeStore) Put(_ context.Context, key string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut {
		return errors.New("disk full")
	}
	s.blobs[key] = append([]byte(nil), blob...)
	return nil
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	if s.getHook != nil {
		s.getHook(key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, core.ErrNotFound
	}
	return b, nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDel[key] {
		return errors.New("busy")
	}
	s.deletes[key]++
	delete(s.blobs, key)
	return nil
}

func (s *fakeStore) deleteCount(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deletes[key]
}

func (s *fakeStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[key]
	return ok
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager() (*Manager, *fakeStore, *clock) {
	st := newFakeStore()
	clk := &clock{now: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(st, time.Millisecond)
	m.now = clk.Now
	return m, st, clk
}

func ptr[T any](v T) *T { return &v }

type fakePoster struct {
	mu  sync.Mutex
	err error
	got []domain.Message
	id  string
}

func (p *fakePoster) PostMessage(_ context.Context, m domain.Message) (domain.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, m)
	if p.err != nil {
		return domain.Message{}, p.err
	}
	out := m
	if p.id != "" {
		out.ID = p.id
	}
	return out, nil
}
