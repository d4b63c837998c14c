package encryption

import (
	"go.uber.org/atomic"
)

type sdkBox struct {
	sdk SDK
}

// Slot is the place a loader publishes the encryption provider into once it
// becomes available. The zero value is an empty slot.
type Slot struct {
	value atomic.Value
}

// NewSlot returns an empty slot.
func NewSlot() *Slot {
	return &Slot{}
}

// Publish makes sdk available to waiting builders.
func (s *Slot) Publish(sdk SDK) {
	s.value.Store(sdkBox{sdk: sdk})
}

// Load returns the published provider, or nil.
func (s *Slot) Load() SDK {
	box, _ := s.value.Load().(sdkBox)
	return box.sdk
}

// Ready reports whether a provider has been published.
func (s *Slot) Ready() bool {
	return s.Load() != nil
}
