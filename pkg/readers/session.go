package readers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/exp/slices"
)

const drainTimeout = 1 * time.Second

var (
	ErrSessionActive = errors.New("tag session already active for device")
)

// Session is an acquired reader which delivers tag presence events until it
// is released. Sessions are released explicitly or when the context they were
// acquired with ends.
type Session struct {
	reader  Reader
	device  string
	events  chan Scan
	done    chan struct{}
	once    sync.Once
	release func()
	err     error
}

func (s *Session) Reader() Reader {
	return s.reader
}

func (s *Session) Device() string {
	return s.device
}

// Events returns tag presence events from the reader.
func (s *Session) Events() <-chan Scan {
	return s.events
}

// Done is closed when the session has been released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Release() error {
	s.once.Do(func() {
		close(s.done)
		if s.release != nil {
			s.release()
		}
		s.err = s.reader.Close()
		log.Debug().Msgf("released tag session: %s", s.device)
	})
	return s.err
}

// forward passes scans from the reader to the session until it is released,
// then drains anything the reader still had in flight.
func (s *Session) forward(ctx context.Context, raw <-chan Scan) {
	for {
		select {
		case scan := <-raw:
			select {
			case s.events <- scan:
			case <-s.done:
			}
		case <-ctx.Done():
			err := s.Release()
			if err != nil {
				log.Warn().Err(err).Msgf("error closing reader: %s", s.device)
			}
			drain(raw)
			return
		case <-s.done:
			drain(raw)
			return
		}
	}
}

func drain(raw <-chan Scan) {
	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	for {
		select {
		case <-raw:
			timer.Reset(drainTimeout)
		case <-timer.C:
			return
		}
	}
}

// Dispatcher hands out tag sessions, allowing only a single active listener
// per device.
type Dispatcher struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		sessions: make(map[string]*Session),
	}
}

// Acquire opens the reader on device and starts a session for it. The
// session is released when ctx is done.
func (d *Dispatcher) Acquire(ctx context.Context, r Reader, device string) (*Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.sessions[device]; ok {
		return nil, ErrSessionActive
	}

	raw := make(chan Scan)
	err := r.Open(device, raw)
	if err != nil {
		return nil, err
	}

	s := &Session{
		reader: r,
		device: device,
		events: make(chan Scan),
		done:   make(chan struct{}),
	}
	s.release = func() {
		d.mu.Lock()
		if d.sessions[device] == s {
			delete(d.sessions, device)
		}
		d.mu.Unlock()
	}

	d.sessions[device] = s
	go s.forward(ctx, raw)

	log.Debug().Msgf("acquired tag session: %s", device)
	return s, nil
}

func (d *Dispatcher) Get(device string) (*Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[device]
	return s, ok
}

// Devices returns the devices with an active session, sorted.
func (d *Dispatcher) Devices() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	devices := make([]string, 0, len(d.sessions))
	for k := range d.sessions {
		devices = append(devices, k)
	}
	slices.Sort(devices)

	return devices
}

func (d *Dispatcher) ReleaseAll() {
	for _, device := range d.Devices() {
		s, ok := d.Get(device)
		if !ok {
			continue
		}
		err := s.Release()
		if err != nil {
			log.Warn().Err(err).Msgf("error closing reader: %s", device)
		}
	}
}
