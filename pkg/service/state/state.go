package state

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/api/models"
	"github.com/wizzomafizzo/mfctext/pkg/readers"
	"github.com/wizzomafizzo/mfctext/pkg/tokens"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type State struct {
	mu            sync.RWMutex
	activeTokens  map[string]*tokens.Token
	lastScanned   *tokens.Token
	wroteToken    *tokens.Token
	sessions      *readers.Dispatcher
	notifications chan<- models.Notification
}

// NewState creates the service state. Notifications are dropped if ns is nil
// or full.
func NewState(ns chan<- models.Notification) *State {
	return &State{
		activeTokens:  make(map[string]*tokens.Token),
		sessions:      readers.NewDispatcher(),
		notifications: ns,
	}
}

func (s *State) Notify(method string, params any) {
	if s.notifications == nil {
		return
	}

	select {
	case s.notifications <- models.Notification{Method: method, Params: params}:
	default:
		log.Warn().Msgf("notification queue full, dropping: %s", method)
	}
}

func (s *State) Sessions() *readers.Dispatcher {
	return s.sessions
}

// SetActiveToken sets the token present on a reader, nil if it was removed.
// Returns false if nothing changed.
func (s *State) SetActiveToken(device string, token *tokens.Token) bool {
	s.mu.Lock()

	prev := s.activeTokens[device]
	if tokens.Equal(prev, token) {
		// ignore duplicate scans
		s.mu.Unlock()
		return false
	}

	if token == nil {
		delete(s.activeTokens, device)
	} else {
		t := *token
		s.activeTokens[device] = &t
		s.lastScanned = &t
	}
	s.mu.Unlock()

	if token == nil {
		s.Notify(models.NotificationTokensRemoved, device)
	} else {
		s.Notify(models.NotificationTokensAdded, *token)
	}

	return true
}

// GetActiveTokens returns the tokens currently on a reader, ordered by
// device.
func (s *State) GetActiveTokens() []tokens.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := maps.Keys(s.activeTokens)
	slices.Sort(devices)

	ts := make([]tokens.Token, 0, len(devices))
	for _, d := range devices {
		ts = append(ts, *s.activeTokens[d])
	}

	return ts
}

func (s *State) GetLastScanned() *tokens.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastScanned == nil {
		return nil
	}
	t := *s.lastScanned
	return &t
}

func (s *State) SetWroteToken(token *tokens.Token) {
	s.mu.Lock()
	s.wroteToken = token
	s.mu.Unlock()
}

func (s *State) GetWroteToken() *tokens.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wroteToken
}

func (s *State) GetReader(device string) (readers.Reader, bool) {
	session, ok := s.sessions.Get(device)
	if !ok {
		return nil, false
	}
	return session.Reader(), true
}

// ListReaders returns the devices with an open reader, sorted.
func (s *State) ListReaders() []string {
	return s.sessions.Devices()
}

// RemoveReader releases the reader's session and forgets any token that was
// on it.
func (s *State) RemoveReader(device string) {
	session, ok := s.sessions.Get(device)
	if !ok {
		return
	}

	err := session.Release()
	if err != nil {
		log.Warn().Err(err).Msg("error closing reader")
	}

	s.SetActiveToken(device, nil)
	s.Notify(models.NotificationReadersDisconnected, device)
}
