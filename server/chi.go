package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PavelAgarkov/warlock/logger"
	logger "github.com/PavelAgarkov/warlock/logger/zap_engine"
	"github.com/PavelAgarkov/warlock/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"
)

type HTTPServerChi struct {
	port   string
	Router *chi.Mux
}

// CreateHTTPChiServer создаёт и запускает HTTP-сервер на chi, возвращает функцию остановки.
func CreateHTTPChiServer(
	routes func(*HTTPServerChi),
	port string,
	mwf ...func(http.Handler) http.Handler,
) func() {
	return NewHTTPChiServer(routes, port, mwf...).run()
}

func NewHTTPChiServer(routes func(*HTTPServerChi), port string, mwf ...func(http.Handler) http.Handler) *HTTPServerChi {
	s := &HTTPServerChi{
		port:   port,
		Router: chi.NewRouter(),
	}
	if len(mwf) > 0 {
		s.Router.Use(mwf...)
	}
	routes(s)
	return s
}

func (s *HTTPServerChi) run() func() {
	srv := &http.Server{
		Addr:              s.port,
		Handler:           s.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	utils.GoRecover(ctx, func(ctx context.Context) {
		defer cancel()
		logger.WriteInfoLog(ctx, &logger_wrapper.LogEntry{
			Msg:       "lock API listening",
			Component: "http",
			Method:    "run",
			Args:      s.port,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("server stopped: %s", err))
		}
	})

	return s.shutdown(srv)
}

func (s *HTTPServerChi) shutdown(srv *http.Server) func() {
	return func() {
		logger.WriteInfoLog(context.Background(), &logger_wrapper.LogEntry{
			Msg:       "stopping lock API",
			Component: "http",
			Method:    "shutdown",
			Args:      s.port,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.WriteErrorLog(context.Background(), &logger_wrapper.LogEntry{
				Msg:       "lock API shutdown failed",
				Error:     err,
				Component: "http",
				Method:    "shutdown",
				Args:      s.port,
			})
		}
	}
}

type contextChiKey string

const (
	correlationChiIDCtxKey contextChiKey = "correlation_id"
	correlationHeader                    = "X-Correlation-ID"
)

func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationChiIDCtxKey).(string)
	return id
}

// RecoverChiMiddleware превращает panic в хэндлере в ответ 500 с JSON-ошибкой.
func RecoverChiMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				writeError(r.Context(), w, http.StatusInternalServerError, fmt.Errorf("panic in %s %s: %v", r.Method, r.URL.Path, rec))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// LoggingChiMiddleware логирует запрос с маршрутом и именем lock, проставляет X-Correlation-ID.
func LoggingChiMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := r.Header.Get(correlationHeader)
		if corrID == "" {
			corrID = xid.New().String()
		}
		ctx := context.WithValue(r.Context(), correlationChiIDCtxKey, corrID)
		w.Header().Set(correlationHeader, corrID)

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sw, r.WithContext(ctx))

		route, name := r.URL.Path, ""
		if rctx := chi.RouteContext(ctx); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
			name = rctx.URLParam("name")
		}

		write := logger.WriteInfoLog
		if sw.status >= http.StatusInternalServerError {
			write = logger.WriteWarnLog
		}
		write(ctx, &logger_wrapper.LogEntry{
			Msg:       fmt.Sprintf("%s %s", r.Method, route),
			Component: "http",
			Method:    "LoggingChiMiddleware",
			Name:      name,
			Args:      fmt.Sprintf("correlation_id=%s remote=%s", corrID, r.RemoteAddr),
			Result:    sw.status,
			Start:     &start,
		})
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}
