// Package ridehail simulates riders and drivers of a ride-hailing service.
package ridehail

import "github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/engine"

// Class names, also used as configuration keys.
const (
	ClassRider  = "rider"
	ClassDriver = "driver"
)

// ClassOptions configures the user classes.
type ClassOptions struct {
	RiderWeight  int
	DriverWeight int

	// Signer, when set, gives every user a bearer token.
	Signer *TokenSigner
}

// UserClasses returns the rider and driver classes.
func UserClasses(opts ClassOptions) []engine.UserClass {
	return []engine.UserClass{
		{
			Name:   ClassRider,
			Weight: opts.RiderWeight,
			New:    func() engine.Behavior { return NewRiderBehavior(opts.Signer) },
		},
		{
			Name:   ClassDriver,
			Weight: opts.DriverWeight,
			New:    func() engine.Behavior { return NewDriverBehavior(opts.Signer) },
		},
	}
}
