package mockserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/ridehail"
)

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func call(t *testing.T, s *Server, method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	t.Helper()

	var rd *bytes.Reader
	switch b := body.(type) {
	case nil:
		rd = bytes.NewReader(nil)
	case string:
		rd = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func field(rec *httptest.ResponseRecorder, path string) gjson.Result {
	return gjson.GetBytes(rec.Body.Bytes(), path)
}

func TestNew_InvalidRateLimit(t *testing.T) {
	_, err := New(Config{RateLimit: "lots"})
	assert.Error(t, err)
}

func TestServer_RideLifecycle(t *testing.T) {
	s := newTestServer(t, Config{Drivers: 2})

	rec := call(t, s, http.MethodPost, ridehail.PathRiderSignup, map[string]string{"id": "r1", "name": "Rider-r1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Rider created", field(rec, "message").String())
	assert.Equal(t, "r1", field(rec, "rider.id").String())

	rec = call(t, s, http.MethodPost, ridehail.PathRequestRide, ridehail.RideRequest{
		RiderID: "r1",
		Pickup:  here,
		Dropoff: there,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ride_1", field(rec, "ride.id").String())
	assert.Equal(t, RideRequested, field(rec, "ride.status").String())
	assert.Equal(t, 15.0, field(rec, "ride.fare").Float())
	assert.False(t, field(rec, "ride.accept_time").Exists())

	rec = call(t, s, http.MethodGet, ridehail.PathAvailableRides, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ride_1", field(rec, "rides.0.id").String())

	rec = call(t, s, http.MethodGet, ridehail.PathAvailableDrivers, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), field(rec, "drivers.#").Int())
	assert.Equal(t, "driver_1", field(rec, "drivers.0.id").String())

	rec = call(t, s, http.MethodPost, ridehail.AcceptRidePath("ride_1"), map[string]string{"driver_id": "driver_1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Ride accepted", field(rec, "message").String())
	assert.Equal(t, "driver_1", field(rec, "ride.driver_id").String())

	rec = call(t, s, http.MethodGet, ridehail.PathAvailableDrivers, nil, nil)
	assert.Equal(t, "driver_2", field(rec, "drivers.0.id").String(), "driver_1 is busy")

	rec = call(t, s, http.MethodGet, ridehail.PathAvailableRides, nil, nil)
	assert.Equal(t, `{"rides":[]}`, strings.TrimSpace(rec.Body.String()))

	rec = call(t, s, http.MethodPost, ridehail.CompleteRidePath("ride_1"), map[string]string{"driver_id": "driver_1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call(t, s, http.MethodGet, ridehail.RideStatusPath("ride_1"), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, RideCompleted, field(rec, "ride.status").String())
	assert.True(t, field(rec, "ride.complete_time").Exists())

	rec = call(t, s, http.MethodGet, "/api/rides/rider/r1/history", nil, nil)
	assert.Equal(t, int64(1), field(rec, "rides.#").Int())

	rec = call(t, s, http.MethodGet, "/api/drivers/driver_1/rides", nil, nil)
	assert.Equal(t, int64(1), field(rec, "rides.#").Int())
}

func TestServer_DriverEndpoints(t *testing.T) {
	s := newTestServer(t, Config{})

	driver := map[string]any{"id": "d7", "name": "Dee", "location": here}
	rec := call(t, s, http.MethodPost, "/api/drivers/signup", driver, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, DriverAvailable, field(rec, "driver.status").String())

	rec = call(t, s, http.MethodPost, "/api/drivers/signup", driver, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call(t, s, http.MethodPost, "/api/drivers/d7/location", map[string]any{"location": there}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Location updated", field(rec, "message").String())
	assert.Equal(t, there.Lat, field(rec, "driver.location.lat").Float())

	rec = call(t, s, http.MethodPost, "/api/drivers/nobody/location", map[string]any{"location": there}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrDriverNotFound.Error(), field(rec, "error").String())

	rec = call(t, s, http.MethodPost, "/api/drivers/d7/location", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Errors(t *testing.T) {
	s := newTestServer(t, Config{Drivers: 1})
	require.Equal(t, http.StatusOK, call(t, s, http.MethodPost, ridehail.PathRiderSignup, map[string]string{"id": "r1"}, nil).Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"duplicate rider", http.MethodPost, ridehail.PathRiderSignup, map[string]string{"id": "r1"}, http.StatusConflict},
		{"rider without id", http.MethodPost, ridehail.PathRiderSignup, map[string]string{"name": "x"}, http.StatusBadRequest},
		{"malformed body", http.MethodPost, ridehail.PathRiderSignup, "{", http.StatusBadRequest},
		{"unknown rider", http.MethodPost, ridehail.PathRequestRide, ridehail.RideRequest{RiderID: "ghost", Pickup: here, Dropoff: there}, http.StatusBadRequest},
		{"missing pickup", http.MethodPost, ridehail.PathRequestRide, map[string]any{"rider_id": "r1", "dropoff": there}, http.StatusBadRequest},
		{"unknown ride status", http.MethodGet, ridehail.RideStatusPath("ride_9"), nil, http.StatusNotFound},
		{"unknown ride cancel", http.MethodPost, "/api/rides/ride_9/cancel", nil, http.StatusNotFound},
		{"unknown ride accept", http.MethodPost, ridehail.AcceptRidePath("ride_9"), map[string]string{"driver_id": "driver_1"}, http.StatusBadRequest},
		{"unknown ride complete", http.MethodPost, ridehail.CompleteRidePath("ride_9"), map[string]string{"driver_id": "driver_1"}, http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/api/nothing", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := call(t, s, tt.method, tt.path, tt.body, nil)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestServer_CancelRide(t *testing.T) {
	s := newTestServer(t, Config{Drivers: 1})
	call(t, s, http.MethodPost, ridehail.PathRiderSignup, map[string]string{"id": "r1"}, nil)
	call(t, s, http.MethodPost, ridehail.PathRequestRide, ridehail.RideRequest{RiderID: "r1", Pickup: here, Dropoff: there}, nil)

	rec := call(t, s, http.MethodPost, "/api/rides/ride_1/cancel", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, RideCancelled, field(rec, "ride.status").String())

	rec = call(t, s, http.MethodPost, ridehail.AcceptRidePath("ride_1"), map[string]string{"driver_id": "driver_1"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrRideUnavailable.Error(), field(rec, "error").String())
}

func TestServer_JWT(t *testing.T) {
	const secret = "test-secret"
	s := newTestServer(t, Config{Drivers: 1, JWTSecret: secret})

	rec := call(t, s, http.MethodGet, ridehail.PathAvailableDrivers, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := http.Header{"Authorization": {"Bearer not-a-token"}}
	rec = call(t, s, http.MethodGet, ridehail.PathAvailableDrivers, nil, bad)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	signer, err := ridehail.NewTokenSigner(secret, "ridesim", 0)
	require.NoError(t, err)
	token, err := signer.Sign("d1", ridehail.RoleDriver)
	require.NoError(t, err)

	rec = call(t, s, http.MethodGet, ridehail.PathAvailableDrivers, nil, http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, rec.Code)

	other, err := ridehail.NewTokenSigner("other-secret", "ridesim", 0)
	require.NoError(t, err)
	token, err = other.Sign("d1", ridehail.RoleDriver)
	require.NoError(t, err)
	rec = call(t, s, http.MethodGet, ridehail.PathAvailableDrivers, nil, http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = call(t, s, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is not protected")
}

func TestServer_RateLimit(t *testing.T) {
	s := newTestServer(t, Config{RateLimit: "2-M"})

	for i := 0; i < 2; i++ {
		rec := call(t, s, http.MethodGet, ridehail.PathAvailableRides, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := call(t, s, http.MethodGet, ridehail.PathAvailableRides, nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate limit exceeded", field(rec, "error").String())
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, Config{Drivers: 3})
	call(t, s, http.MethodGet, ridehail.RideStatusPath("ride_1"), nil, nil)
	call(t, s, http.MethodGet, ridehail.PathAvailableDrivers, nil, nil)

	rec := call(t, s, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, `ridesim_mock_http_requests_total{code="404",method="GET",route="/api/rides/{id}/status"} 1`)
	assert.Contains(t, body, `ridesim_mock_http_requests_total{code="200",method="GET",route="/api/drivers/available-drivers"} 1`)
	assert.Contains(t, body, "ridesim_mock_drivers 3")
	assert.Contains(t, body, "ridesim_mock_http_request_duration_seconds_bucket")
}

func TestServer_AccessLog(t *testing.T) {
	var buf bytes.Buffer
	s := newTestServer(t, Config{AccessLog: &buf})

	call(t, s, http.MethodGet, ridehail.PathAvailableRides, nil, nil)
	assert.Contains(t, buf.String(), `"GET /api/drivers/available-rides HTTP/1.1" 200`)
}
