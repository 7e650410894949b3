package client

import (
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/api"
	"github.com/wizzomafizzo/mfctext/pkg/api/models"
	"github.com/wizzomafizzo/mfctext/pkg/config"
)

var (
	ErrRequestTimeout = errors.New("request timed out")
	ErrInvalidParams  = errors.New("invalid params")
)

// newRequest builds a request object, params must be empty or valid JSON.
func newRequest(method string, params string) (models.RequestObject, error) {
	id, err := uuid.NewUUID()
	if err != nil {
		return models.RequestObject{}, err
	}

	req := models.RequestObject{
		JsonRpc: "2.0",
		Id:      &id,
		Method:  method,
	}

	if len(params) == 0 {
		return req, nil
	} else if !json.Valid([]byte(params)) {
		return req, ErrInvalidParams
	}

	req.Params = json.RawMessage(params)
	return req, nil
}

// LocalClient sends a single method with params to the local running API
// service, waits for a response until timeout then disconnects.
func LocalClient(
	cfg *config.UserConfig,
	method string,
	params string,
	timeout time.Duration,
) (string, error) {
	u := url.URL{
		Scheme: "ws",
		Host:   "localhost:" + cfg.GetApiPort(),
		Path:   "/",
	}

	req, err := newRequest(method, params)
	if err != nil {
		return "", err
	}
	id := *req.Id

	if timeout <= 0 {
		timeout = api.RequestTimeout
	}

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return "", err
	}
	defer func(c *websocket.Conn) {
		err := c.Close()
		if err != nil {
			log.Warn().Err(err).Msg("error closing websocket")
		}
	}(c)

	done := make(chan struct{})
	var resp *models.ResponseObject

	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Msg("error reading message")
				return
			}

			var m models.ResponseObject
			err = json.Unmarshal(message, &m)
			if err != nil {
				continue
			}

			if m.JsonRpc != "2.0" {
				log.Error().Msg("invalid jsonrpc version")
				continue
			}

			if m.Id != id {
				continue
			}

			resp = &m
			return
		}
	}()

	err = c.WriteJSON(req)
	if err != nil {
		return "", err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		return "", ErrRequestTimeout
	}

	if resp == nil {
		return "", ErrRequestTimeout
	}

	if resp.Error != nil {
		return "", errors.New(resp.Error.Message)
	}

	b, err := json.Marshal(resp.Result)
	if err != nil {
		return "", err
	}

	return string(b), nil
}
