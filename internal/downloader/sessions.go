package downloader

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type session struct {
	gid    string
	cancel context.CancelFunc
}

// Sessions tracks running lifecycle goroutines so they can be stopped one by
// one and awaited on shutdown.
type Sessions struct {
	mu   sync.Mutex
	byID map[string]*session
	wg   sync.WaitGroup
}

func NewSessions() *Sessions {
	return &Sessions{byID: make(map[string]*session)}
}

// Go runs fn in a new goroutine with a child of ctx and returns the session
// id. gid is the job the session was started for.
func (s *Sessions) Go(ctx context.Context, gid string, fn func(ctx context.Context)) string {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.byID[id] = &session{gid: gid, cancel: cancel}
	s.mu.Unlock()

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer s.remove(id)
		defer cancel()

		fn(ctx)
	}()

	return id
}

// StopByGID cancels every session started for gid and reports how many were
// stopped.
func (s *Sessions) StopByGID(gid string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	stopped := 0

	for _, sess := range s.byID {
		if sess.gid == gid {
			sess.cancel()
			stopped++
		}
	}

	return stopped
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.byID)
}

// Wait blocks until every session has returned.
func (s *Sessions) Wait() {
	s.wg.Wait()
}

func (s *Sessions) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.byID, id)
}
