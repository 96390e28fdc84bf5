package mockserver

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/swaranjalilamkane/Scalable-Ride-Booking-System/internal/ridehail"
)

// Ride statuses.
const (
	RideRequested  = "requested"
	RideAccepted   = "accepted"
	RideInProgress = "in_progress"
	RideCompleted  = "completed"
	RideCancelled  = "cancelled"
)

// Driver statuses.
const (
	DriverAvailable = "available"
	DriverBusy      = "busy"
)

// Base fare and per-unit rate. Distance is not computed, every ride costs
// the same.
const (
	baseFare     = 5.0
	ratePerUnit  = 2.0
	fareDistance = 5.0
)

// Errors returned by Store. Their messages are sent to clients as the
// error field of the response body.
var (
	ErrRiderExists     = errors.New("rider already exists")
	ErrDriverExists    = errors.New("driver already exists")
	ErrRiderNotFound   = errors.New("rider not found")
	ErrDriverNotFound  = errors.New("driver not found")
	ErrRideNotFound    = errors.New("ride not found")
	ErrRideUnavailable = errors.New("ride is not available for acceptance")
	ErrDriverNotFree   = errors.New("driver is not available")
	ErrNotAssigned     = errors.New("driver is not assigned to this ride")
	ErrCannotComplete  = errors.New("ride cannot be completed in current status")
	ErrCannotCancel    = errors.New("cannot cancel completed ride")
	ErrMissingID       = errors.New("id is required")
)

// Rider is a registered rider.
type Rider struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Driver is a registered driver.
type Driver struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Location ridehail.Location `json:"location"`
	Status   string            `json:"status"`
}

// Ride is a ride request and its progress.
type Ride struct {
	ID           string            `json:"id"`
	RiderID      string            `json:"rider_id"`
	DriverID     string            `json:"driver_id,omitempty"`
	Pickup       ridehail.Location `json:"pickup"`
	Dropoff      ridehail.Location `json:"dropoff"`
	Status       string            `json:"status"`
	RequestTime  time.Time         `json:"request_time"`
	AcceptTime   *time.Time        `json:"accept_time,omitempty"`
	CompleteTime *time.Time        `json:"complete_time,omitempty"`
	Fare         float64           `json:"fare,omitempty"`
}

// Store holds riders, drivers and rides in memory. All methods return
// copies, so callers may keep them.
type Store struct {
	mu      sync.RWMutex
	riders  map[string]*Rider
	drivers map[string]*Driver
	rides   map[string]*Ride
	nextID  int
	now     func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		riders:  make(map[string]*Rider),
		drivers: make(map[string]*Driver),
		rides:   make(map[string]*Ride),
		nextID:  1,
		now:     time.Now,
	}
}

// SeedDrivers registers n available drivers named driver_1..driver_n at
// random locations.
func (s *Store) SeedDrivers(n int, rng *rand.Rand) {
	for i := 1; i <= n; i++ {
		id := "driver_" + strconv.Itoa(i)
		// Already-present ids are left alone.
		_, _ = s.CreateDriver(Driver{
			ID:       id,
			Name:     "Driver " + strconv.Itoa(i),
			Location: ridehail.RandomLocation(rng),
		})
	}
}

// CreateRider registers a rider.
func (s *Store) CreateRider(r Rider) (Rider, error) {
	if r.ID == "" {
		return Rider{}, ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.riders[r.ID]; ok {
		return Rider{}, ErrRiderExists
	}
	s.riders[r.ID] = &r
	return r, nil
}

// CreateDriver registers a driver. New drivers are always available.
func (s *Store) CreateDriver(d Driver) (Driver, error) {
	if d.ID == "" {
		return Driver{}, ErrMissingID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drivers[d.ID]; ok {
		return Driver{}, ErrDriverExists
	}
	d.Status = DriverAvailable
	s.drivers[d.ID] = &d
	return d, nil
}

// UpdateDriverLocation moves a driver.
func (s *Store) UpdateDriverLocation(id string, loc ridehail.Location) (Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drivers[id]
	if !ok {
		return Driver{}, ErrDriverNotFound
	}
	d.Location = loc
	return *d, nil
}

// RequestRide creates a ride for a registered rider.
func (s *Store) RequestRide(riderID string, pickup, dropoff ridehail.Location) (Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.riders[riderID]; !ok {
		return Ride{}, ErrRiderNotFound
	}

	ride := &Ride{
		ID:          fmt.Sprintf("ride_%d", s.nextID),
		RiderID:     riderID,
		Pickup:      pickup,
		Dropoff:     dropoff,
		Status:      RideRequested,
		RequestTime: s.now(),
		Fare:        baseFare + fareDistance*ratePerUnit,
	}
	s.nextID++
	s.rides[ride.ID] = ride
	return *ride, nil
}

// AcceptRide assigns an available driver to a requested ride.
func (s *Store) AcceptRide(rideID, driverID string) (Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.rides[rideID]
	if !ok {
		return Ride{}, ErrRideNotFound
	}
	driver, ok := s.drivers[driverID]
	if !ok {
		return Ride{}, ErrDriverNotFound
	}
	if ride.Status != RideRequested {
		return Ride{}, ErrRideUnavailable
	}
	if driver.Status != DriverAvailable {
		return Ride{}, ErrDriverNotFree
	}

	now := s.now()
	ride.DriverID = driverID
	ride.Status = RideAccepted
	ride.AcceptTime = &now
	driver.Status = DriverBusy
	return ride.clone(), nil
}

// CompleteRide finishes a ride and frees its driver.
func (s *Store) CompleteRide(rideID, driverID string) (Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.rides[rideID]
	if !ok {
		return Ride{}, ErrRideNotFound
	}
	if ride.DriverID != driverID {
		return Ride{}, ErrNotAssigned
	}
	if ride.Status != RideAccepted && ride.Status != RideInProgress {
		return Ride{}, ErrCannotComplete
	}

	now := s.now()
	ride.Status = RideCompleted
	ride.CompleteTime = &now
	if d, ok := s.drivers[driverID]; ok {
		d.Status = DriverAvailable
	}
	return ride.clone(), nil
}

// CancelRide cancels a ride that has not completed yet. An assigned driver
// becomes available again.
func (s *Store) CancelRide(rideID string) (Ride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.rides[rideID]
	if !ok {
		return Ride{}, ErrRideNotFound
	}
	if ride.Status == RideCompleted {
		return Ride{}, ErrCannotCancel
	}

	if ride.DriverID != "" {
		if d, ok := s.drivers[ride.DriverID]; ok {
			d.Status = DriverAvailable
		}
	}
	ride.Status = RideCancelled
	return ride.clone(), nil
}

// Ride returns a ride by id.
func (s *Store) Ride(id string) (Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ride, ok := s.rides[id]
	if !ok {
		return Ride{}, ErrRideNotFound
	}
	return ride.clone(), nil
}

// AvailableDrivers lists drivers that can take a ride, ordered by id.
func (s *Store) AvailableDrivers() []Driver {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Driver, 0, len(s.drivers))
	for _, d := range s.drivers {
		if d.Status == DriverAvailable {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })
	return out
}

// AvailableRides lists rides waiting for a driver, oldest first.
func (s *Store) AvailableRides() []Ride {
	return s.filterRides(func(r *Ride) bool { return r.Status == RideRequested })
}

// DriverRides lists the rides assigned to a driver.
func (s *Store) DriverRides(driverID string) []Ride {
	return s.filterRides(func(r *Ride) bool { return r.DriverID == driverID })
}

// RiderHistory lists the rides requested by a rider.
func (s *Store) RiderHistory(riderID string) []Ride {
	return s.filterRides(func(r *Ride) bool { return r.RiderID == riderID })
}

// Counts returns the number of riders, drivers and rides.
func (s *Store) Counts() (riders, drivers, rides int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.riders), len(s.drivers), len(s.rides)
}

func (s *Store) filterRides(keep func(*Ride) bool) []Ride {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Ride, 0)
	for _, r := range s.rides {
		if keep(r) {
			out = append(out, r.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })
	return out
}

func (r *Ride) clone() Ride {
	c := *r
	if r.AcceptTime != nil {
		t := *r.AcceptTime
		c.AcceptTime = &t
	}
	if r.CompleteTime != nil {
		t := *r.CompleteTime
		c.CompleteTime = &t
	}
	return c
}

// lessID orders "prefix_N" ids by their numeric suffix, so ride_10 sorts
// after ride_9. Other ids compare as strings.
func lessID(a, b string) bool {
	pa, na, okA := splitID(a)
	pb, nb, okB := splitID(b)
	if okA && okB && pa == pb {
		return na < nb
	}
	return a < b
}

func splitID(id string) (string, int, bool) {
	i := strings.LastIndexByte(id, '_')
	if i < 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return "", 0, false
	}
	return id[:i], n, true
}
