package device

import (
	"context"
	"slices"
	"sync"
	"time"
)

// DefaultCacheTTL is how long the Registry trusts a cached identity.
const DefaultCacheTTL = 30 * time.Second

// Lookup is the read side of Repository the Registry caches.
type Lookup interface {
	GetSensorBySerial(ctx context.Context, serial string) (*Sensor, error)
	GetSensorParameters(ctx context.Context, sensorID int64) (Parameters, error)
	GetDeviceBySerial(ctx context.Context, serial string) (*Device, error)
}

type cached[T any] struct {
	value   T
	expires time.Time
}

// Registry is a read-through cache of sensor and device identities.
//
// The broker calls the ACL hook for every publish, so each sensor reading
// would otherwise cost two queries before it is even delivered. Entries live
// for the TTL; registrations are managed elsewhere, so a revoked credential
// stays usable until its entry expires or Invalidate is called. The auth
// bridge invalidates an identity whose cached secret fails to verify.
// Misses and errors are never cached.
//
// All public methods are thread-safe.
type Registry struct {
	repo Lookup
	ttl  time.Duration
	now  func() time.Time

	sensors map[string]cached[*Sensor]
	params  map[int64]cached[Parameters]
	devices map[string]cached[*Device]
	cacheMu sync.RWMutex

	hits, misses uint64
}

// NewRegistry creates a registry over repo. A non-positive ttl uses DefaultCacheTTL.
func NewRegistry(repo Lookup, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Registry{
		repo:    repo,
		ttl:     ttl,
		now:     time.Now,
		sensors: make(map[string]cached[*Sensor]),
		params:  make(map[int64]cached[Parameters]),
		devices: make(map[string]cached[*Device]),
	}
}

// GetSensorBySerial returns the sensor, from cache when fresh.
// The returned sensor is a copy; callers can safely modify it.
func (r *Registry) GetSensorBySerial(ctx context.Context, serial string) (*Sensor, error) {
	if s, ok := lookup(r, r.sensors, serial); ok {
		return s.clone(), nil
	}

	s, err := r.repo.GetSensorBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	store(r, r.sensors, serial, s.clone())
	return s, nil
}

// GetSensorParameters returns the parameters of the sensor's type, from cache when fresh.
func (r *Registry) GetSensorParameters(ctx context.Context, sensorID int64) (Parameters, error) {
	if p, ok := lookup(r, r.params, sensorID); ok {
		return slices.Clone(p), nil
	}

	p, err := r.repo.GetSensorParameters(ctx, sensorID)
	if err != nil {
		return nil, err
	}
	store(r, r.params, sensorID, slices.Clone(p))
	return p, nil
}

// GetDeviceBySerial returns the device, from cache when fresh.
// The returned device is a copy; callers can safely modify it.
func (r *Registry) GetDeviceBySerial(ctx context.Context, serial string) (*Device, error) {
	if d, ok := lookup(r, r.devices, serial); ok {
		return d.clone(), nil
	}

	d, err := r.repo.GetDeviceBySerial(ctx, serial)
	if err != nil {
		return nil, err
	}
	store(r, r.devices, serial, d.clone())
	return d, nil
}

// Invalidate drops every cached entry for a serial number, sensor or device.
func (r *Registry) Invalidate(serial string) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	if s, ok := r.sensors[serial]; ok {
		delete(r.params, s.value.ID)
		delete(r.sensors, serial)
	}
	delete(r.devices, serial)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	Sensors int
	Devices int
	Hits    uint64
	Misses  uint64
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	return Stats{
		Sensors: len(r.sensors),
		Devices: len(r.devices),
		Hits:    r.hits,
		Misses:  r.misses,
	}
}

func lookup[K comparable, V any](r *Registry, m map[K]cached[V], key K) (V, bool) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	entry, ok := m[key]
	if !ok || !r.now().Before(entry.expires) {
		r.misses++
		var zero V
		return zero, false
	}
	r.hits++
	return entry.value, true
}

func store[K comparable, V any](r *Registry, m map[K]cached[V], key K, value V) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	m[key] = cached[V]{value: value, expires: r.now().Add(r.ttl)}
}

func (s *Sensor) clone() *Sensor {
	c := *s
	if s.RoomID != nil {
		room := *s.RoomID
		c.RoomID = &room
	}
	return &c
}

func (d *Device) clone() *Device {
	c := *d
	if d.RoomID != nil {
		room := *d.RoomID
		c.RoomID = &room
	}
	return &c
}
