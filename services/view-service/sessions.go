package main

import (
	"context"
	"sync"

	"citizen-reporting-system/pkg/reportview"
)

// sessions holds one report view per user. The view opens with the user's
// first stream and closes when the last stream of that user disconnects.
// mu guards the map only; views are opened outside it.
type sessions struct {
	mu    sync.Mutex
	views map[string]*session
	open  func(userID string) *reportview.View
}

type session struct {
	view  *reportview.View
	refs  int
	ready chan struct{}
}

func newSessions(open func(userID string) *reportview.View) *sessions {
	return &sessions{views: make(map[string]*session), open: open}
}

func (s *sessions) acquire(ctx context.Context, userID string) *reportview.View {
	s.mu.Lock()
	if sess, ok := s.views[userID]; ok {
		sess.refs++
		s.mu.Unlock()
		<-sess.ready
		return sess.view
	}
	sess := &session{view: s.open(userID), refs: 1, ready: make(chan struct{})}
	s.views[userID] = sess
	s.mu.Unlock()

	sess.view.Open(ctx)
	close(sess.ready)
	return sess.view
}

func (s *sessions) release(userID string) {
	s.mu.Lock()
	sess, ok := s.views[userID]
	if !ok {
		s.mu.Unlock()
		return
	}
	sess.refs--
	if sess.refs > 0 {
		s.mu.Unlock()
		return
	}
	delete(s.views, userID)
	s.mu.Unlock()

	<-sess.ready
	sess.view.Close()
}

// get returns the user's view once it has finished opening.
func (s *sessions) get(userID string) (*reportview.View, bool) {
	s.mu.Lock()
	sess, ok := s.views[userID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	<-sess.ready
	return sess.view, true
}

func (s *sessions) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.views)
}

// closeAll closes every view and waits for in-flight fetches to finish.
func (s *sessions) closeAll() {
	s.mu.Lock()
	all := make([]*session, 0, len(s.views))
	for id, sess := range s.views {
		all = append(all, sess)
		delete(s.views, id)
	}
	s.mu.Unlock()

	for _, sess := range all {
		<-sess.ready
		sess.view.Close()
	}
	for _, sess := range all {
		sess.view.Wait()
	}
}
