// Package mockserver is an in-memory ride-hailing service to point load
// tests at.
package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/ridehail"
)

// Config configures a Server.
type Config struct {
	// Drivers is the number of drivers registered at start.
	Drivers int

	// Seed drives the seeded driver locations. Zero uses the current time.
	Seed int64

	// RateLimit is a per-client-IP limit in limiter format ("100-S",
	// "1000-M"). Empty disables rate limiting.
	RateLimit string

	// JWTSecret, when set, makes every /api route require a bearer token
	// signed with it.
	JWTSecret string

	// AccessLog receives one Common Log Format line per request. Nil
	// disables access logging.
	AccessLog io.Writer
}

// Server serves the ride-hailing API from a Store.
type Server struct {
	store     *Store
	router    *mux.Router
	handler   http.Handler
	registry  *prometheus.Registry
	limiter   *limiter.Limiter
	jwtSecret string

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// New creates a server with cfg.Drivers seeded drivers.
func New(cfg Config) (*Server, error) {
	s := &Server{
		store:     NewStore(),
		router:    mux.NewRouter(),
		registry:  prometheus.NewRegistry(),
		jwtSecret: cfg.JWTSecret,
	}

	if cfg.RateLimit != "" {
		rate, err := limiter.NewRateFromFormatted(cfg.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("invalid rate limit %q: %w", cfg.RateLimit, err)
		}
		s.limiter = limiter.New(memory.NewStore(), rate)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s.store.SeedDrivers(cfg.Drivers, rand.New(rand.NewSource(seed)))

	s.registerMetrics()
	s.routes()

	var h http.Handler = s.router
	if cfg.AccessLog != nil {
		h = handlers.LoggingHandler(cfg.AccessLog, h)
	}
	s.handler = h
	return s, nil
}

// Store returns the server's state.
func (s *Server) Store() *Store {
	return s.store
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() {
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.instrument, s.rateLimit, s.authenticate)

	api.HandleFunc("/rides/signup", s.riderSignup).Methods(http.MethodPost)
	api.HandleFunc("/rides/request", s.requestRide).Methods(http.MethodPost)
	api.HandleFunc("/rides/rider/{id}/history", s.riderHistory).Methods(http.MethodGet)
	api.HandleFunc("/rides/{id}/status", s.rideStatus).Methods(http.MethodGet)
	api.HandleFunc("/rides/{id}/cancel", s.cancelRide).Methods(http.MethodPost)
	api.HandleFunc("/rides/{id}/accept", s.acceptRide).Methods(http.MethodPost)
	api.HandleFunc("/rides/{id}/complete", s.completeRide).Methods(http.MethodPost)

	api.HandleFunc("/drivers/signup", s.driverSignup).Methods(http.MethodPost)
	api.HandleFunc("/drivers/available-drivers", s.availableDrivers).Methods(http.MethodGet)
	api.HandleFunc("/drivers/available-rides", s.availableRides).Methods(http.MethodGet)
	api.HandleFunc("/drivers/{id}/location", s.updateLocation).Methods(http.MethodPost)
	api.HandleFunc("/drivers/{id}/rides", s.driverRides).Methods(http.MethodGet)
}

func (s *Server) registerMetrics() {
	s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ridesim_mock",
		Name:      "http_requests_total",
		Help:      "Requests served, by route, method and status code.",
	}, []string{"route", "method", "code"})

	s.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ridesim_mock",
		Name:      "http_request_duration_seconds",
		Help:      "Time spent serving a request, by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	count := func(name, help string, pick func(r, d, n int) int) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "ridesim_mock",
			Name:      name,
			Help:      help,
		}, func() float64 {
			return float64(pick(s.store.Counts()))
		})
	}

	s.registry.MustRegister(
		s.requests,
		s.duration,
		count("riders", "Registered riders.", func(r, _, _ int) int { return r }),
		count("drivers", "Registered drivers.", func(_, d, _ int) int { return d }),
		count("rides", "Rides ever requested.", func(_, _, n int) int { return n }),
	)
}

// Middleware

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		m := httpsnoop.CaptureMetrics(next, w, r)
		s.requests.WithLabelValues(route, r.Method, strconv.Itoa(m.Code)).Inc()
		s.duration.WithLabelValues(route).Observe(m.Duration.Seconds())
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lctx, err := s.limiter.Get(r.Context(), s.limiter.GetIPKey(r))
		if err != nil {
			respondError(w, http.StatusInternalServerError, "rate limit error")
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(lctx.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(lctx.Remaining, 10))
		if lctx.Reached {
			respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	if s.jwtSecret == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondError(w, http.StatusUnauthorized, "authorization header required")
			return
		}
		if _, err := ridehail.ParseToken(s.jwtSecret, token); err != nil {
			respondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handlers

type rideRequestBody struct {
	RiderID string             `json:"rider_id"`
	Pickup  *ridehail.Location `json:"pickup"`
	Dropoff *ridehail.Location `json:"dropoff"`
}

type driverRefBody struct {
	DriverID string `json:"driver_id"`
}

type locationBody struct {
	Location *ridehail.Location `json:"location"`
}

func (s *Server) riderSignup(w http.ResponseWriter, r *http.Request) {
	var rider Rider
	if !decodeBody(w, r, &rider) {
		return
	}

	created, err := s.store.CreateRider(rider)
	switch {
	case errors.Is(err, ErrRiderExists):
		respondError(w, http.StatusConflict, err.Error())
	case err != nil:
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondJSON(w, http.StatusOK, map[string]any{"message": "Rider created", "rider": created})
	}
}

func (s *Server) requestRide(w http.ResponseWriter, r *http.Request) {
	var body rideRequestBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.RiderID == "" || body.Pickup == nil || body.Dropoff == nil {
		respondError(w, http.StatusBadRequest, "rider_id, pickup, and dropoff are required")
		return
	}

	ride, err := s.store.RequestRide(body.RiderID, *body.Pickup, *body.Dropoff)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "Ride requested", "ride": ride})
}

func (s *Server) rideStatus(w http.ResponseWriter, r *http.Request) {
	ride, err := s.store.Ride(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ride": ride})
}

func (s *Server) cancelRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.store.CancelRide(mux.Vars(r)["id"])
	switch {
	case errors.Is(err, ErrRideNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case err != nil:
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondJSON(w, http.StatusOK, map[string]any{"message": "Ride cancelled", "ride": ride})
	}
}

func (s *Server) acceptRide(w http.ResponseWriter, r *http.Request) {
	var body driverRefBody
	if !decodeBody(w, r, &body) {
		return
	}

	ride, err := s.store.AcceptRide(mux.Vars(r)["id"], body.DriverID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "Ride accepted", "ride": ride})
}

func (s *Server) completeRide(w http.ResponseWriter, r *http.Request) {
	var body driverRefBody
	if !decodeBody(w, r, &body) {
		return
	}

	ride, err := s.store.CompleteRide(mux.Vars(r)["id"], body.DriverID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "Ride completed", "ride": ride})
}

func (s *Server) riderHistory(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"rides": s.store.RiderHistory(mux.Vars(r)["id"])})
}

func (s *Server) driverSignup(w http.ResponseWriter, r *http.Request) {
	var driver Driver
	if !decodeBody(w, r, &driver) {
		return
	}

	created, err := s.store.CreateDriver(driver)
	switch {
	case errors.Is(err, ErrDriverExists):
		respondError(w, http.StatusConflict, err.Error())
	case err != nil:
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondJSON(w, http.StatusOK, map[string]any{"message": "Driver created", "driver": created})
	}
}

func (s *Server) updateLocation(w http.ResponseWriter, r *http.Request) {
	var body locationBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Location == nil {
		respondError(w, http.StatusBadRequest, "location is required")
		return
	}

	driver, err := s.store.UpdateDriverLocation(mux.Vars(r)["id"], *body.Location)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "Location updated", "driver": driver})
}

func (s *Server) availableDrivers(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"drivers": s.store.AvailableDrivers()})
}

func (s *Server) availableRides(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"rides": s.store.AvailableRides()})
}

func (s *Server) driverRides(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"rides": s.store.DriverRides(mux.Vars(r)["id"])})
}

// decodeBody reads a JSON request body into v. On failure it writes a 400
// and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
