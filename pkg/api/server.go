package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
	"github.com/wizzomafizzo/mfctext/pkg/api/methods"
	"github.com/wizzomafizzo/mfctext/pkg/api/models"
	"github.com/wizzomafizzo/mfctext/pkg/api/models/requests"
	"github.com/wizzomafizzo/mfctext/pkg/config"
	"github.com/wizzomafizzo/mfctext/pkg/database"
	"github.com/wizzomafizzo/mfctext/pkg/service/state"
	"github.com/wizzomafizzo/mfctext/pkg/utils"
)

const (
	RequestTimeout  = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

const (
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeServer         = 1
)

var ErrUnknownMethod = errors.New("unknown method")

var methodMap = map[string]func(requests.RequestEnv) (any, error){
	// readers
	models.MethodReaders:            methods.HandleReaders,
	models.MethodReadersWrite:       methods.HandleReaderWrite,
	models.MethodReadersWriteCancel: methods.HandleReaderWriteCancel,
	// tokens
	models.MethodTokens:  methods.HandleTokens,
	models.MethodHistory: methods.HandleHistory,
	// settings
	models.MethodSettings:       methods.HandleSettings,
	models.MethodSettingsUpdate: methods.HandleSettingsUpdate,
	// codec
	models.MethodMifareDecode: methods.HandleMifareDecode,
	models.MethodMifareEncode: methods.HandleMifareEncode,
	// utils
	models.MethodVersion: methods.HandleVersion,
}

func handleRequest(env requests.RequestEnv, req models.RequestObject) (any, error) {
	log.Debug().Interface("request", req).Msg("received request")

	fn, ok := methodMap[req.Method]
	if !ok {
		return nil, ErrUnknownMethod
	}

	if req.Id == nil {
		return nil, errors.New("missing request id")
	}

	env.Id = *req.Id
	env.Params = req.Params

	return fn(env)
}

func marshalResponse(id uuid.UUID, result any) ([]byte, error) {
	resp := models.ResponseObject{
		JsonRpc: "2.0",
		Id:      id,
		Result:  result,
	}
	return json.Marshal(resp)
}

func marshalError(id uuid.UUID, code int, message string) ([]byte, error) {
	resp := models.ResponseObject{
		JsonRpc: "2.0",
		Id:      id,
		Error: &models.ErrorObject{
			Code:    code,
			Message: message,
		},
	}
	return json.Marshal(resp)
}

func sendResponse(s *melody.Session, id uuid.UUID, result any) error {
	log.Debug().Interface("result", result).Msg("sending response")

	data, err := marshalResponse(id, result)
	if err != nil {
		return err
	}

	return s.Write(data)
}

func sendError(s *melody.Session, id uuid.UUID, code int, message string) error {
	log.Debug().Int("code", code).Str("message", message).Msg("sending error")

	data, err := marshalError(id, code, message)
	if err != nil {
		return err
	}

	return s.Write(data)
}

func marshalNotification(n models.Notification) ([]byte, error) {
	params, err := json.Marshal(n.Params)
	if err != nil {
		return nil, err
	}

	return json.Marshal(models.RequestObject{
		JsonRpc: "2.0",
		Method:  n.Method,
		Params:  params,
	})
}

// broadcastNotifications sends every notification to all connected clients
// until ctx is done.
func broadcastNotifications(
	ctx context.Context,
	m *melody.Melody,
	ns <-chan models.Notification,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-ns:
			data, err := marshalNotification(n)
			if err != nil {
				log.Error().Err(err).Msg("marshalling notification request")
				continue
			}

			err = m.Broadcast(data)
			if err != nil {
				log.Error().Err(err).Msg("broadcasting notification")
			}
		}
	}
}

func isLocal(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func handleMessage(
	cfg *config.UserConfig,
	st *state.State,
	db *database.Database,
) func(s *melody.Session, msg []byte) {
	return func(s *melody.Session, msg []byte) {
		// ping command for heartbeat operation
		if bytes.Equal(msg, []byte("ping")) {
			err := s.Write([]byte("pong"))
			if err != nil {
				log.Error().Err(err).Msg("sending pong")
			}
			return
		}

		if !json.Valid(msg) {
			log.Error().Msg("data not valid json")
			err := sendError(s, uuid.Nil, ErrCodeInvalidRequest, "invalid json")
			if err != nil {
				log.Error().Err(err).Msg("error sending error response")
			}
			return
		}

		var req models.RequestObject
		err := json.Unmarshal(msg, &req)
		if err != nil || req.JsonRpc != "2.0" || req.Method == "" {
			log.Error().Str("jsonrpc", req.JsonRpc).Msg("invalid request object")
			id := uuid.Nil
			if req.Id != nil {
				id = *req.Id
			}
			err := sendError(s, id, ErrCodeInvalidRequest, "invalid request")
			if err != nil {
				log.Error().Err(err).Msg("error sending error response")
			}
			return
		}

		if req.Id == nil {
			log.Info().Interface("req", req).Msg("received notification, ignoring")
			return
		}

		env := requests.RequestEnv{
			Config:   cfg,
			State:    st,
			Database: db,
			IsLocal:  isLocal(s.Request.RemoteAddr),
		}

		// writes block until a tag is presented, so requests can't hold up
		// the session's read loop
		go func() {
			resp, err := handleRequest(env, req)
			if errors.Is(err, ErrUnknownMethod) {
				err := sendError(s, *req.Id, ErrCodeMethodNotFound, err.Error())
				if err != nil {
					log.Error().Err(err).Msg("error sending error response")
				}
				return
			} else if err != nil {
				err := sendError(s, *req.Id, ErrCodeServer, err.Error())
				if err != nil {
					log.Error().Err(err).Msg("error sending error response")
				}
				return
			}

			err = sendResponse(s, *req.Id, resp)
			if err != nil {
				log.Error().Err(err).Msg("error sending response")
			}
		}()
	}
}

func newRouter(
	ctx context.Context,
	cfg *config.UserConfig,
	st *state.State,
	db *database.Database,
	ns <-chan models.Notification,
) (http.Handler, *melody.Melody) {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)
	r.Use(middleware.Timeout(RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET"},
		AllowedHeaders: []string{"Accept"},
		ExposedHeaders: []string{},
	}))

	m := melody.New()
	m.Upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	m.HandleMessage(handleMessage(cfg, st, db))

	go broadcastNotifications(ctx, m, ns)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		err := m.HandleRequest(w, r)
		if err != nil {
			log.Error().Err(err).Msg("handling websocket request")
		}
	})

	r.Get("/status", methods.HandleStatusHttp(st))

	return r, m
}

// Start serves the JSON-RPC websocket API until ctx is done.
func Start(
	ctx context.Context,
	cfg *config.UserConfig,
	st *state.State,
	db *database.Database,
	ns <-chan models.Notification,
) error {
	handler, m := newRouter(ctx, cfg, st, db, ns)
	log.Debug().Msgf("api methods: %v", utils.AlphaMapKeys(methodMap))

	srv := &http.Server{
		Addr:    ":" + cfg.GetApiPort(),
		Handler: handler,
	}

	go func() {
		<-ctx.Done()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := m.Close()
		if err != nil {
			log.Warn().Err(err).Msg("error closing websocket sessions")
		}

		err = srv.Shutdown(sctx)
		if err != nil {
			log.Warn().Err(err).Msg("error shutting down http server")
		}
	}()

	log.Info().Msgf("starting api server on port %s", cfg.GetApiPort())
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	} else if err != nil {
		log.Error().Err(err).Msg("error starting http server")
		return err
	}

	return nil
}
