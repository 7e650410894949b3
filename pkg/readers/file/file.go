package file

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/config"
	"github.com/wizzomafizzo/mfctext/pkg/mifare"
	"github.com/wizzomafizzo/mfctext/pkg/readers"
	"github.com/wizzomafizzo/mfctext/pkg/tokens"
)

const (
	// files are often written in several steps, wait for them to settle
	settleDelay = 100 * time.Millisecond
	writeTries  = 4 * 30 // ~30 seconds
	writePeriod = 250 * time.Millisecond
)

// FileReader treats a raw MIFARE Classic dump file as a tag sitting on a
// reader. A missing or empty file means there is no tag.
type FileReader struct {
	cfg         *config.UserConfig
	mu          sync.RWMutex
	device      string
	path        string
	watcher     *fsnotify.Watcher
	done        chan struct{}
	write       chan readers.WriteRequest
	activeWrite readers.ActiveWrite
}

func NewReader(cfg *config.UserConfig) *FileReader {
	return &FileReader{
		cfg:   cfg,
		write: make(chan readers.WriteRequest),
	}
}

func (r *FileReader) Ids() []string {
	return []string{"file"}
}

func (r *FileReader) Open(device string, iq chan<- readers.Scan) error {
	_, path, err := readers.ParseDevice(r, device)
	if err != nil {
		return err
	}

	if !filepath.IsAbs(path) {
		return errors.New("invalid device path, must be absolute")
	}
	path = filepath.Clean(path)

	parent := filepath.Dir(path)
	if _, err := os.Stat(parent); err != nil {
		return err
	}

	// the parent is watched so files replaced by editors are still seen
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	err = watcher.Add(parent)
	if err != nil {
		_ = watcher.Close()
		return err
	}

	done := make(chan struct{})

	r.mu.Lock()
	r.device = device
	r.path = path
	r.watcher = watcher
	r.done = done
	r.mu.Unlock()

	opts := readers.TagOptionsFromConfig(r.cfg)
	go r.watch(watcher, path, device, done, iq, opts)

	return nil
}

// loadCard returns the tag stored in the file, or nil if there isn't one.
func loadCard(path string) (*mifare.MemoryCard, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	} else if len(data) == 0 {
		return nil, nil
	}

	return mifare.NewMemoryCard(data)
}

func readFile(path string, device string, opts readers.TagOptions) (*tokens.Token, error) {
	card, err := loadCard(path)
	if err != nil || card == nil {
		return nil, err
	}

	return readers.ReadToken(card, card.Layout(), card.UID(), device, opts)
}

func writeFile(path string, device string, opts readers.TagOptions, text string) (*tokens.Token, error) {
	card, err := loadCard(path)
	if err != nil {
		return nil, err
	} else if card == nil {
		return nil, readers.ErrNoTag
	}

	token, err := readers.WriteToken(card, card.Layout(), card.UID(), device, opts, text)
	if err != nil {
		return nil, err
	}

	err = os.WriteFile(path, card.Bytes(), 0644)
	if err != nil {
		return nil, err
	}

	return token, nil
}

func (r *FileReader) watch(
	watcher *fsnotify.Watcher,
	path string,
	device string,
	done <-chan struct{},
	iq chan<- readers.Scan,
	opts readers.TagOptions,
) {
	send := func(scan readers.Scan) bool {
		select {
		case iq <- scan:
			return true
		case <-done:
			return false
		}
	}

	var token *tokens.Token

	update := func() bool {
		next, err := readFile(path, device, opts)
		if err != nil {
			log.Warn().Err(err).Msgf("could not read dump file: %s", path)
			return send(readers.Scan{Source: device, Error: err})
		}

		if next == nil && token != nil {
			log.Debug().Msg("dump file is empty, removing token")
			token = nil
			return send(readers.Scan{Source: device})
		} else if next == nil || tokens.Equal(next, token) {
			return true
		}

		log.Debug().Msgf("new token: %s", next.Text)
		token = next
		return send(readers.Scan{Source: device, Token: token})
	}

	if !update() {
		return
	}

	var settle <-chan time.Time

	for {
		select {
		case <-done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			settle = time.After(settleDelay)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Error().Msgf("watcher error: %s", err)
		case <-settle:
			settle = nil
			if !update() {
				return
			}
		case req := <-r.write:
			written := r.writeTag(path, device, &req, opts)
			if written != nil {
				token = written
				if !send(readers.Scan{Source: device, Token: token}) {
					return
				}
			}
		}
	}
}

func (r *FileReader) writeTag(
	path string,
	device string,
	req *readers.WriteRequest,
	opts readers.TagOptions,
) *tokens.Token {
	log.Info().Msgf("write request: %s", req.Text)

	err := r.activeWrite.Begin(req)
	if err != nil {
		req.Result <- readers.WriteRequestResult{Err: err}
		return nil
	}
	defer r.activeWrite.End()

	for tries := writeTries; tries > 0; tries-- {
		token, err := writeFile(path, device, opts, req.Text)
		if errors.Is(err, readers.ErrNoTag) {
			select {
			case <-req.Cancel:
				log.Info().Msg("write cancelled by user")
				req.Result <- readers.WriteRequestResult{Cancelled: true}
				return nil
			case <-time.After(writePeriod):
			}
			continue
		} else if err != nil {
			log.Error().Err(err).Msg("error writing to dump file")
			req.Result <- readers.WriteRequestResult{Err: err}
			return nil
		}

		req.Result <- readers.WriteRequestResult{Token: token}
		return token
	}

	req.Result <- readers.WriteRequestResult{Err: readers.ErrNoTag}
	return nil
}

func (r *FileReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		close(r.done)
		r.done = nil
	}

	if r.watcher != nil {
		err := r.watcher.Close()
		r.watcher = nil
		return err
	}

	return nil
}

func (r *FileReader) Detect(_ []string) string {
	return ""
}

func (r *FileReader) Device() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.device
}

func (r *FileReader) Connected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.done != nil
}

func (r *FileReader) Info() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return "Dump file (" + r.path + ")"
}

func (r *FileReader) Write(text string) (*tokens.Token, error) {
	if !r.Connected() {
		return nil, readers.ErrNotConnected
	} else if r.activeWrite.Active() {
		return nil, readers.ErrWriteInProgress
	}

	req := readers.NewWriteRequest(text)

	select {
	case r.write <- req:
	case <-time.After(5 * time.Second):
		return nil, errors.New("reader is not accepting writes")
	}

	return req.Wait()
}

func (r *FileReader) CancelWrite() {
	r.activeWrite.Cancel()
}
