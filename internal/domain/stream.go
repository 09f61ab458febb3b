package domain

import "sync"

// RemoteStream groups received tracks that share a stream id. The engine
// owns the tracks; holders only read them.
type RemoteStream struct {
	ID string

	mu     sync.Mutex
	tracks []RemoteTrack
}

func NewRemoteStream(id string) *RemoteStream {
	return &RemoteStream{ID: id}
}

func (s *RemoteStream) AddTrack(t RemoteTrack) {
	s.mu.Lock()
	s.tracks = append(s.tracks, t)
	s.mu.Unlock()
}

func (s *RemoteStream) Tracks() []RemoteTrack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RemoteTrack(nil), s.tracks...)
}
