package usecase

import (
	"sync"
	"time"

	"voxjob/internal/domain"
	"voxjob/internal/ports"
)

type activeRecording struct {
	cancel    func()
	audio     ports.AudioSession
	provider  domain.Provider
	startedAt time.Time
	limit     *time.Timer

	stateMu sync.Mutex
	state   domain.RecordingState
}

func (s *activeRecording) setState(state domain.RecordingState) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
}

func (s *activeRecording) getState() domain.RecordingState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// claim moves a recording session to stopping. Only the first caller wins, so a
// manual stop racing the duration ceiling finalizes the capture once.
func (s *activeRecording) claim() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.state != domain.RecordingStateRecording {
		return false
	}
	s.state = domain.RecordingStateStopping
	return true
}

func (s *activeRecording) stopLimit() {
	if s.limit != nil {
		s.limit.Stop()
	}
}
