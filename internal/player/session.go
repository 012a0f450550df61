package player

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/anatolykoptev/go_tunes/internal/engine"
	"github.com/anatolykoptev/go_tunes/internal/engine/sources"
)

// Pinned tracks and the shared play queue. Both are process memory, kept
// apart from the search history store.

const (
	MaxPins  = 5
	MaxQueue = 10
)

// PlayerState is the shared playback state every client sees.
type PlayerState struct {
	CurrentURL *string  `json:"current_url"`
	Playing    bool     `json:"is_playing"`
	Queue      []string `json:"queue"`
}

type session struct {
	mu      sync.Mutex
	pins    []string // most recently pinned first
	queue   []string
	current string
	playing bool
}

func (s *session) stateLocked() PlayerState {
	st := PlayerState{Playing: s.playing, Queue: slices.Clone(s.queue)}
	if st.Queue == nil {
		st.Queue = []string{}
	}
	if s.current != "" {
		cur := s.current
		st.CurrentURL = &cur
	}
	return st
}

// canonicalVideoURL validates raw and rewrites it to the watch URL form, so
// youtu.be and watch links for one video compare equal.
func canonicalVideoURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !sources.IsVideoURL(raw) {
		return "", fmt.Errorf("%w: invalid video URL", ErrBadInput)
	}
	return engine.WatchURL(sources.ExtractVideoID(raw)), nil
}

// Pin adds videoURL to the front of the pinned list. Pinning an already
// pinned video is a no-op.
func (s *Service) Pin(videoURL string) ([]string, error) {
	u, err := canonicalVideoURL(videoURL)
	if err != nil {
		return nil, err
	}
	s.session.mu.Lock()
	defer s.session.mu.Unlock()
	if slices.Contains(s.session.pins, u) {
		return s.session.pinsLocked(), nil
	}
	if len(s.session.pins) >= MaxPins {
		return nil, fmt.Errorf("%w: at most %d pinned tracks", ErrFull, MaxPins)
	}
	s.session.pins = slices.Insert(s.session.pins, 0, u)
	slog.Debug("pinned", slog.String("url", u))
	return s.session.pinsLocked(), nil
}

// Unpin removes videoURL from the pinned list if present.
func (s *Service) Unpin(videoURL string) ([]string, error) {
	u, err := canonicalVideoURL(videoURL)
	if err != nil {
		return nil, err
	}
	s.session.mu.Lock()
	defer s.session.mu.Unlock()
	s.session.pins = slices.DeleteFunc(s.session.pins, func(p string) bool { return p == u })
	return s.session.pinsLocked(), nil
}

// Pins returns the pinned URLs, most recently pinned first.
func (s *Service) Pins() []string {
	s.session.mu.Lock()
	defer s.session.mu.Unlock()
	return s.session.pinsLocked()
}

func (s *session) pinsLocked() []string {
	out := slices.Clone(s.pins)
	if out == nil {
		out = []string{}
	}
	return out
}

// Play makes videoURL the current track.
func (s *Service) Play(videoURL string) (PlayerState, error) {
	u, err := canonicalVideoURL(videoURL)
	if err != nil {
		return PlayerState{}, err
	}
	s.session.mu.Lock()
	defer s.session.mu.Unlock()
	s.session.current = u
	s.session.playing = true
	return s.session.stateLocked(), nil
}

func (s *Service) Pause() PlayerState {
	s.session.mu.Lock()
	defer s.session.mu.Unlock()
	s.session.playing = false
	return s.session.stateLocked()
}

// Resume resumes the current track; with nothing current it stays stopped.
func (s *Service) Resume() PlayerState {
	s.session.mu.Lock()
	defer s.session.mu.Unlock()
	s.session.playing = s.session.current != ""
	return s.session.stateLocked()
}

// Enqueue appends videoURL to the play queue.
func (s *Service) Enqueue(videoURL string) (PlayerState, error) {
	u, err := canonicalVideoURL(videoURL)
	if err != nil {
		return PlayerState{}, err
	}
	s.session.mu.Lock()
	defer s.session.mu.Unlock()
	if len(s.session.queue) >= MaxQueue {
		return PlayerState{}, fmt.Errorf("%w: queue holds at most %d tracks", ErrFull, MaxQueue)
	}
	s.session.queue = append(s.session.queue, u)
	return s.session.stateLocked(), nil
}

// Next moves the head of the queue to current. An empty queue stops playback.
func (s *Service) Next() PlayerState {
	s.session.mu.Lock()
	defer s.session.mu.Unlock()
	if len(s.session.queue) == 0 {
		s.session.current = ""
		s.session.playing = false
		return s.session.stateLocked()
	}
	s.session.current = s.session.queue[0]
	s.session.queue = slices.Delete(s.session.queue, 0, 1)
	s.session.playing = true
	return s.session.stateLocked()
}

func (s *Service) State() PlayerState {
	s.session.mu.Lock()
	defer s.session.mu.Unlock()
	return s.session.stateLocked()
}
