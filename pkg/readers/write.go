package readers

import (
	"errors"
	"sync"

	"github.com/wizzomafizzo/mfctext/pkg/tokens"
)

var (
	ErrWriteCancelled  = errors.New("write operation was cancelled")
	ErrWriteInProgress = errors.New("write already in progress")
	ErrNotConnected    = errors.New("not connected")
	ErrNoTag           = errors.New("could not detect a tag")
	ErrVerifyFailed    = errors.New("data mismatch after write")
)

type WriteRequestResult struct {
	Token     *tokens.Token
	Err       error
	Cancelled bool
}

type WriteRequest struct {
	Result chan WriteRequestResult
	Cancel chan bool
	Text   string
}

func NewWriteRequest(text string) WriteRequest {
	return WriteRequest{
		Text:   text,
		Result: make(chan WriteRequestResult, 1),
		Cancel: make(chan bool, 1),
	}
}

// Wait blocks until the request has been handled by the reader.
func (req WriteRequest) Wait() (*tokens.Token, error) {
	res := <-req.Result
	if res.Cancelled {
		return nil, ErrWriteCancelled
	} else if res.Err != nil {
		return nil, res.Err
	}
	return res.Token, nil
}

// ActiveWrite tracks the write a reader is currently working on so it can be
// cancelled from outside the polling loop.
type ActiveWrite struct {
	mu  sync.RWMutex
	req *WriteRequest
}

func (a *ActiveWrite) Begin(req *WriteRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.req != nil {
		return ErrWriteInProgress
	}
	a.req = req
	return nil
}

func (a *ActiveWrite) End() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.req = nil
}

func (a *ActiveWrite) Active() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.req != nil
}

func (a *ActiveWrite) Cancel() {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.req == nil {
		return
	}
	select {
	case a.req.Cancel <- true:
	default:
	}
}
