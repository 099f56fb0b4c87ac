package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/goevery/liverelay/internal/auth"
	"github.com/goevery/liverelay/internal/handler"
	"github.com/goevery/liverelay/internal/ierr"
	"github.com/goevery/liverelay/internal/relay"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type RESTServer struct {
	logger *zap.Logger

	authenticator  *auth.Authenticator
	publishHandler handler.PublishHandlerInterface
	relay          *relay.Relay
}

func NewRESTServer(
	logger *zap.Logger,
	authenticator *auth.Authenticator,
	publishHandler handler.PublishHandlerInterface,
	relay *relay.Relay,
) *RESTServer {
	return &RESTServer{
		logger,
		authenticator,
		publishHandler,
		relay,
	}
}

func (s *RESTServer) Register(router *mux.Router) {
	router.HandleFunc("/publish", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			return
		}

		apiKey, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found {
			s.writeError(w, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("missing bearer token")))
			return
		}

		authentication, err := s.authenticator.AuthenticateAPIKey(apiKey)
		if err != nil {
			s.writeError(w, err)
			return
		}

		var publishRequest handler.PublishRequest
		err = json.NewDecoder(r.Body).Decode(&publishRequest)
		if err != nil {
			s.writeError(w, ierr.New(ierr.ErrorCodeInvalidArgument, errors.New("invalid request body")))
			return
		}

		ctx := auth.WithAuthentication(r.Context(), authentication)

		message, err := s.publishHandler.Handle(ctx, publishRequest)
		if err != nil {
			s.writeError(w, err)
			return
		}

		s.writeJSON(w, http.StatusOK, message)
	}).Methods(http.MethodPost, http.MethodOptions)

	router.HandleFunc("/broadcaster", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.relay.CheckBroadcaster())
	}).Methods(http.MethodGet)
}

func (s *RESTServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		s.logger.Debug("failed to encode response", zap.Error(err))
	}
}

func (s *RESTServer) writeError(w http.ResponseWriter, err error) {
	var handlerErr ierr.Error
	if !errors.As(err, &handlerErr) {
		s.logger.Error("error in rest handler", zap.Error(err))

		handlerErr = ierr.New(ierr.ErrorCodeInternal, errors.New("internal error"))
	}

	s.writeJSON(w, httpStatus(handlerErr.Code), handlerErr)
}

func httpStatus(code ierr.ErrorCode) int {
	switch code {
	case ierr.ErrorCodeInvalidArgument:
		return http.StatusBadRequest
	case ierr.ErrorCodeNotFound:
		return http.StatusNotFound
	case ierr.ErrorCodeAlreadyExists:
		return http.StatusConflict
	case ierr.ErrorCodeFailedPrecondition:
		return http.StatusPreconditionFailed
	case ierr.ErrorCodePermissionDenied:
		return http.StatusForbidden
	case ierr.ErrorCodeUnauthenticated:
		return http.StatusUnauthorized
	case ierr.ErrorCodeResourceExhausted:
		return http.StatusTooManyRequests
	case ierr.ErrorCodeTransportUnavailable, ierr.ErrorCodeStaleHandle:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
