package ridehail

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/engine"
)

// Status polling limits.
const (
	PollInterval = 5 * time.Second
	MaxPollWait  = 180 * time.Second
)

// Rider is the identity a simulated rider signs up with.
type Rider struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NewRider returns a rider with a fresh random UUID.
func NewRider() Rider {
	id := uuid.NewString()
	return Rider{ID: id, Name: "Rider-" + id[:5]}
}

// RideRequest is the body of a ride request.
type RideRequest struct {
	RiderID string   `json:"rider_id"`
	Pickup  Location `json:"pickup"`
	Dropoff Location `json:"dropoff"`
}

// RiderBehavior signs up once and then keeps requesting rides. Every
// accepted request gets a detached poller that waits for completion.
type RiderBehavior struct {
	signer *TokenSigner
	rider  Rider
}

// NewRiderBehavior creates the behaviour of one rider. signer may be nil.
func NewRiderBehavior(signer *TokenSigner) *RiderBehavior {
	return &RiderBehavior{signer: signer}
}

// Rider returns the rider's identity. It is set by OnStart.
func (b *RiderBehavior) Rider() Rider {
	return b.rider
}

// OnStart implements engine.Behavior.
func (b *RiderBehavior) OnStart(ctx context.Context, u *engine.User) error {
	b.rider = NewRider()
	u.SetData("rider_id", b.rider.ID)

	if b.signer != nil {
		token, err := b.signer.Sign(b.rider.ID, RoleRider)
		if err != nil {
			return err
		}
		u.SetClient(u.Client().WithBearer(token))
	}

	// Fire and forget.
	_ = NewAPI(u.Client()).Signup(ctx, b.rider)
	return nil
}

// Tasks implements engine.Behavior.
func (b *RiderBehavior) Tasks() []engine.Task {
	return []engine.Task{
		{Name: "request_ride", Weight: 3, Fn: b.RequestRide},
	}
}

// RequestRide requests a ride between two random points. If the service
// answers 200 with a ride id, a poller is spawned for that ride.
func (b *RiderBehavior) RequestRide(ctx context.Context, u *engine.User) {
	api := NewAPI(u.Client())
	rideID, err := api.RequestRide(ctx, RideRequest{
		RiderID: b.rider.ID,
		Pickup:  RandomLocation(u.Rand()),
		Dropoff: RandomLocation(u.Rand()),
	})
	if err != nil || rideID == "" {
		return
	}

	clock := u.Clock()
	u.Spawn("wait_for_completion", func(ctx context.Context) {
		WaitForCompletion(ctx, api, clock, rideID)
	})
}

// WaitForCompletion polls the ride's status every PollInterval until it
// reads completed or MaxPollWait has passed, and returns the number of
// polls made. Any failed poll ends the wait; so does the timeout, without
// reporting anything.
func WaitForCompletion(ctx context.Context, api *API, clock engine.Clock, rideID string) int {
	polls := 0
	for waited := time.Duration(0); waited < MaxPollWait; waited += PollInterval {
		status, err := api.RideStatus(ctx, rideID)
		polls++
		if err != nil || status == StatusCompleted {
			return polls
		}
		if clock.Sleep(ctx, PollInterval) != nil {
			return polls
		}
	}
	return polls
}
