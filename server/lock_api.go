package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/PavelAgarkov/warlock/locker"
	"github.com/PavelAgarkov/warlock/logger"
	logger "github.com/PavelAgarkov/warlock/logger/zap_engine"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Readiness interface {
	IsReady() bool
}

// LockAPI exposes Lock, Optimistic and Unlock over HTTP.
type LockAPI struct {
	locker     locker.Locker
	defaultTTL time.Duration
	wait       time.Duration
	readiness  Readiness
	gatherer   prometheus.Gatherer
}

func NewLockAPI(l locker.Locker, defaultTTL time.Duration, readiness Readiness, gatherer prometheus.Gatherer) *LockAPI {
	return &LockAPI{
		locker:     l,
		defaultTTL: defaultTTL,
		readiness:  readiness,
		gatherer:   gatherer,
	}
}

// WithDefaultWait задаёт паузу между попытками, если max_attempts передан без wait_ms.
func (api *LockAPI) WithDefaultWait(wait time.Duration) *LockAPI {
	api.wait = wait
	return api
}

type lockResponse struct {
	Name  string `json:"name"`
	Key   string `json:"key"`
	Token string `json:"token"`
	TTLMs int64  `json:"ttl_ms"`
}

type releaseResponse struct {
	Released bool `json:"released"`
}

type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func (api *LockAPI) Routes(s *HTTPServerChi) {
	s.Router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s.Router.Get("/readyz", api.ready)
	if api.gatherer != nil {
		s.Router.Handle("/metrics", promhttp.HandlerFor(api.gatherer, promhttp.HandlerOpts{}))
	}
	s.Router.Route("/v1/locks", func(r chi.Router) {
		r.Post("/{name}", api.acquire)
		r.Delete("/{name}", api.release)
	})
}

func (api *LockAPI) ready(w http.ResponseWriter, r *http.Request) {
	if api.readiness != nil && !api.readiness.IsReady() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (api *LockAPI) acquire(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")
	q := r.URL.Query()

	ttl := api.defaultTTL
	if v := q.Get("ttl_ms"); v != "" {
		d, err := parseMillis("ttl_ms", v)
		if err != nil {
			writeError(ctx, w, http.StatusBadRequest, err)
			return
		}
		ttl = d
	}

	var (
		lease *locker.Lease
		ok    bool
		err   error
	)
	if v := q.Get("max_attempts"); v != "" {
		attempts, perr := strconv.Atoi(v)
		if perr != nil {
			writeError(ctx, w, http.StatusBadRequest, errors.New("max_attempts must be an integer"))
			return
		}
		wait := api.wait
		if v := q.Get("wait_ms"); v != "" {
			if wait, perr = parseMillis("wait_ms", v); perr != nil {
				writeError(ctx, w, http.StatusBadRequest, perr)
				return
			}
		}
		lease, err = api.locker.Optimistic(ctx, name, ttl, attempts, wait)
		ok = lease != nil
	} else {
		lease, ok, err = api.locker.Lock(ctx, name, ttl)
	}

	if err != nil {
		writeError(ctx, w, statusFor(err), err)
		return
	}
	if !ok {
		writeError(ctx, w, http.StatusConflict, errors.New("lock is held"))
		return
	}

	writeJSON(w, http.StatusCreated, lockResponse{
		Name:  lease.Name,
		Key:   lease.Key,
		Token: lease.Token,
		TTLMs: lease.TTL.Milliseconds(),
	})
}

func (api *LockAPI) release(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	deleted, err := api.locker.Unlock(ctx, chi.URLParam(r, "name"), r.URL.Query().Get("token"))
	if err != nil {
		writeError(ctx, w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, releaseResponse{Released: deleted})
}

const maxMillis = math.MaxInt64 / int64(time.Millisecond)

// parseMillis переводит миллисекунды из query в Duration без переполнения.
func parseMillis(field, v string) (time.Duration, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", field)
	}
	if ms < -maxMillis || ms > maxMillis {
		return 0, fmt.Errorf("%s is out of range", field)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, locker.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, locker.ErrLockUnavailable):
		return http.StatusLocked
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, locker.ErrStore):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		logger.WriteErrorLog(ctx, &logger_wrapper.LogEntry{
			Msg:       "lock request failed",
			Component: "http",
			Method:    "writeError",
			Args:      CorrelationID(ctx),
			Error:     err,
		})
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), CorrelationID: CorrelationID(ctx)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
