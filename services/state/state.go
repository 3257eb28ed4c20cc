// Package state owns the two latest-value caches shared between the
// producer loops and every consumer.
package state

import (
	"cobitis-go/types"
	"cobitis-go/x/snapshot"
)

// Reader is the consumer side: instantaneous, non-blocking copies.
type Reader interface {
	LatestMeasurement() (types.Measurement, bool)
	LatestLinkStatus() (types.LinkStatus, bool)
}

// Observer is told about every completed producer cycle. err is nil on
// success.
type Observer interface {
	ObserveCycle(component string, err error)
}

// Nop is an Observer that ignores everything.
type Nop struct{}

func (Nop) ObserveCycle(string, error) {}

// State is created once at start-up and lives for the whole process.
type State struct {
	meas *snapshot.Cache[types.Measurement]
	link *snapshot.Cache[types.LinkStatus]
}

func New() *State {
	return &State{
		meas: snapshot.New[types.Measurement](),
		link: snapshot.New[types.LinkStatus](),
	}
}

// Measurements is the cache written by the sampler.
func (s *State) Measurements() *snapshot.Cache[types.Measurement] { return s.meas }

// Links is the cache written by the connectivity monitor.
func (s *State) Links() *snapshot.Cache[types.LinkStatus] { return s.link }

func (s *State) LatestMeasurement() (types.Measurement, bool) { return s.meas.Load() }

func (s *State) LatestLinkStatus() (types.LinkStatus, bool) { return s.link.Load() }
