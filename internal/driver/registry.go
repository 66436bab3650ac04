package driver

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/camctl/gigecam/internal/logger"
	"github.com/camctl/gigecam/internal/pvapi"
)

// Registry tracks every Driver instance sharing one transport and routes
// camera link events to them. The transport is initialized when the first
// instance registers and torn down when the last one leaves.
type Registry struct {
	mu        sync.Mutex
	transport pvapi.Transport
	drivers   []*Driver
	log       zerolog.Logger
}

// NewRegistry wraps a transport. The transport stays uninitialized until the
// first instance registers.
func NewRegistry(t pvapi.Transport) *Registry {
	return &Registry{
		transport: t,
		log:       *logger.WithComponent("registry"),
	}
}

// Transport returns the shared transport.
func (r *Registry) Transport() pvapi.Transport { return r.transport }

// Drivers returns the registered instances in registration order.
func (r *Registry) Drivers() []*Driver {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Driver, len(r.drivers))
	copy(out, r.drivers)
	return out
}

// Lookup finds an instance by name.
func (r *Registry) Lookup(name string) (*Driver, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.drivers {
		if d.name == name {
			return d, true
		}
	}
	return nil, false
}

func (r *Registry) register(d *Driver) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.drivers) == 0 {
		if err := r.transport.Initialize(); err != nil {
			return &TransportError{Op: "initialize", Err: err}
		}
		if err := r.transport.RegisterLinkCallback(pvapi.LinkAdd, r.onLink); err != nil {
			r.transport.Uninitialize()
			return &TransportError{Op: "register link callback", Err: err}
		}
		if err := r.transport.RegisterLinkCallback(pvapi.LinkRemove, r.onLink); err != nil {
			r.transport.UnregisterLinkCallback(pvapi.LinkAdd)
			r.transport.Uninitialize()
			return &TransportError{Op: "register link callback", Err: err}
		}
		r.log.Info().Str("sdk_version", r.transport.Version()).Msg("Transport initialized")
	}
	r.drivers = append(r.drivers, d)
	return nil
}

func (r *Registry) unregister(d *Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, v := range r.drivers {
		if v == d {
			r.drivers = append(r.drivers[:i], r.drivers[i+1:]...)
			break
		}
	}
	if len(r.drivers) == 0 {
		r.transport.UnregisterLinkCallback(pvapi.LinkAdd)
		r.transport.UnregisterLinkCallback(pvapi.LinkRemove)
		r.transport.Uninitialize()
		r.log.Info().Msg("Transport shut down")
	}
}

// onLink dispatches a camera link event to the first registered instance
// that claims the camera. Instances are visited in registration order and
// the walk stops at the first one that matches and transitions successfully.
func (r *Registry) onLink(event pvapi.LinkEvent, uniqueID uint32) {
	r.mu.Lock()
	snapshot := make([]*Driver, len(r.drivers))
	copy(snapshot, r.drivers)
	r.mu.Unlock()

	// The event carries only a device ID. Instances configured by network
	// address need the device's address to match; fetch it at most once.
	var (
		addr    string
		fetched bool
	)
	eventAddr := func() string {
		if !fetched {
			fetched = true
			if info, err := r.transport.CameraInfoByID(uniqueID); err == nil {
				addr = info.Address
			}
		}
		return addr
	}

	for _, d := range snapshot {
		var claimed bool
		switch event {
		case pvapi.LinkAdd:
			claimed = d.handleLinkAdd(uniqueID, eventAddr)
		case pvapi.LinkRemove:
			claimed = d.handleLinkRemove(uniqueID)
		}
		if claimed {
			return
		}
	}
	r.log.Debug().
		Uint32("unique_id", uniqueID).
		Int("event", int(event)).
		Msg("Link event matched no registered camera")
}
