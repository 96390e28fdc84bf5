package ridehail

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/engine"
)

// CompletionDelay is how long a driver takes to finish an accepted ride.
const CompletionDelay = 60 * time.Second

// DriverBehavior picks the first available driver and the first waiting
// ride, accepts it and completes it CompletionDelay later.
type DriverBehavior struct {
	signer *TokenSigner
}

// NewDriverBehavior creates the behaviour of one driver. signer may be nil.
func NewDriverBehavior(signer *TokenSigner) *DriverBehavior {
	return &DriverBehavior{signer: signer}
}

// OnStart implements engine.Behavior. Drivers do not sign up; with a
// signer configured they only obtain a token.
func (b *DriverBehavior) OnStart(_ context.Context, u *engine.User) error {
	if b.signer == nil {
		return nil
	}
	token, err := b.signer.Sign(uuid.NewString(), RoleDriver)
	if err != nil {
		return err
	}
	u.SetClient(u.Client().WithBearer(token))
	return nil
}

// Tasks implements engine.Behavior.
func (b *DriverBehavior) Tasks() []engine.Task {
	return []engine.Task{
		{Name: "accept_available_ride", Weight: 1, Fn: b.AcceptAvailableRide},
	}
}

// AcceptAvailableRide accepts the first waiting ride on behalf of the first
// available driver. An empty list or a failed call ends the iteration.
func (b *DriverBehavior) AcceptAvailableRide(ctx context.Context, u *engine.User) {
	api := NewAPI(u.Client())

	driverID, err := api.FirstAvailableDriver(ctx)
	if err != nil || driverID == "" {
		return
	}

	rideID, err := api.FirstAvailableRide(ctx)
	if err != nil || rideID == "" {
		return
	}

	if err := api.AcceptRide(ctx, rideID, driverID); err != nil {
		return
	}

	clock := u.Clock()
	u.Spawn("complete_ride_later", func(ctx context.Context) {
		CompleteRideLater(ctx, api, clock, rideID, driverID)
	})
}

// CompleteRideLater waits CompletionDelay, then completes the ride without
// checking the outcome.
func CompleteRideLater(ctx context.Context, api *API, clock engine.Clock, rideID, driverID string) {
	if clock.Sleep(ctx, CompletionDelay) != nil {
		return
	}
	_ = api.CompleteRide(ctx, rideID, driverID)
}
