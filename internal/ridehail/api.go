package ridehail

import (
	"context"
	"fmt"
	"net/url"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/engine"
)

// Endpoints of the ride-hailing service.
const (
	PathRiderSignup      = "/api/rides/signup"
	PathRequestRide      = "/api/rides/request"
	PathAvailableDrivers = "/api/drivers/available-drivers"
	PathAvailableRides   = "/api/drivers/available-rides"
)

// Report labels. Calls not listed here are sent unlabelled: they count in
// the totals but get no row of their own.
const (
	LabelRidesRequested = "Rides Requested"
	LabelAvailableRides = "Available Rides"
	LabelRidesCompleted = "Rides Completed"
)

// StatusCompleted is the ride status that ends status polling.
const StatusCompleted = "completed"

// RideStatusPath returns the status endpoint of a ride.
func RideStatusPath(rideID string) string {
	return "/api/rides/" + url.PathEscape(rideID) + "/status"
}

// AcceptRidePath returns the accept endpoint of a ride.
func AcceptRidePath(rideID string) string {
	return "/api/rides/" + url.PathEscape(rideID) + "/accept"
}

// CompleteRidePath returns the complete endpoint of a ride.
func CompleteRidePath(rideID string) string {
	return "/api/rides/" + url.PathEscape(rideID) + "/complete"
}

// StatusError reports a response with a status other than 200.
type StatusError struct {
	Path       string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Path, e.StatusCode)
}

// API is a typed view of the ride-hailing service.
type API struct {
	client *engine.Client
}

// NewAPI wraps client.
func NewAPI(client *engine.Client) *API {
	return &API{client: client}
}

type driverRef struct {
	DriverID string `json:"driver_id"`
}

// Signup registers a rider. The response is not inspected.
func (a *API) Signup(ctx context.Context, r Rider) error {
	_, err := a.client.Post(ctx, PathRiderSignup, "", r)
	return err
}

// RequestRide asks for a ride and returns its id. A 200 response without
// an id yields "" and no error.
func (a *API) RequestRide(ctx context.Context, req RideRequest) (string, error) {
	resp, err := a.client.Post(ctx, PathRequestRide, LabelRidesRequested, req)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", &StatusError{Path: PathRequestRide, StatusCode: resp.StatusCode}
	}
	return decodeRideID(resp.Body)
}

// RideStatus returns the current status of a ride, or "" if the response
// carries none.
func (a *API) RideStatus(ctx context.Context, rideID string) (string, error) {
	path := RideStatusPath(rideID)
	resp, err := a.client.Get(ctx, path, "")
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", &StatusError{Path: path, StatusCode: resp.StatusCode}
	}
	return decodeStatus(resp.Body)
}

// FirstAvailableDriver returns the id of the first available driver, or
// "" when there is none.
func (a *API) FirstAvailableDriver(ctx context.Context) (string, error) {
	return a.firstID(ctx, PathAvailableDrivers, "", "drivers")
}

// FirstAvailableRide returns the id of the first ride waiting for a
// driver, or "" when there is none.
func (a *API) FirstAvailableRide(ctx context.Context) (string, error) {
	return a.firstID(ctx, PathAvailableRides, LabelAvailableRides, "rides")
}

func (a *API) firstID(ctx context.Context, path, label, key string) (string, error) {
	resp, err := a.client.Get(ctx, path, label)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", &StatusError{Path: path, StatusCode: resp.StatusCode}
	}
	return decodeFirstID(resp.Body, key)
}

// AcceptRide assigns driverID to a ride. Only the status code is checked.
func (a *API) AcceptRide(ctx context.Context, rideID, driverID string) error {
	path := AcceptRidePath(rideID)
	resp, err := a.client.Post(ctx, path, "", driverRef{DriverID: driverID})
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &StatusError{Path: path, StatusCode: resp.StatusCode}
	}
	return nil
}

// CompleteRide marks a ride completed. The response is not inspected.
func (a *API) CompleteRide(ctx context.Context, rideID, driverID string) error {
	_, err := a.client.Post(ctx, CompleteRidePath(rideID), LabelRidesCompleted, driverRef{DriverID: driverID})
	return err
}
