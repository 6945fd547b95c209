// SPDX-License-Identifier: EPL-2.0

package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ik5/audrt/adjust"
	"github.com/ik5/audrt/audio"
	"github.com/ik5/audrt/component"
	"github.com/ik5/audrt/mixer"
	"github.com/ik5/audrt/store"
)

// StoreConfig carries what track and sample stores share.
type StoreConfig struct {
	Resources store.Store
	Decoders  *audio.Registry
	// Mixer receives every new channel.
	Mixer    *mixer.Mixer
	Registry *adjust.Registry
	Log      zerolog.Logger
}

// TrackStore creates tracks by name and owns them. Its adjustments are the
// parent of every track it creates.
type TrackStore struct {
	*component.Collection[component.Component]
	*adjust.Adjustments

	cfg StoreConfig
	log zerolog.Logger
}

// NewTrackStore creates an empty track store.
func NewTrackStore(cfg StoreConfig) *TrackStore {
	log := cfg.Log.With().Str("store", "tracks").Logger()

	return &TrackStore{
		Collection:  component.NewCollection[component.Component](component.NewBase("track_store", log)),
		Adjustments: adjust.New(cfg.Registry),
		cfg:         cfg,
		log:         log,
	}
}

// Get opens name and starts decoding it in the background. The returned
// track can be controlled right away; it plays once data arrives.
func (s *TrackStore) Get(ctx context.Context, name string) (*Track, error) {
	if err := s.CheckDisposed(); err != nil {
		return nil, err
	}

	rc, err := s.cfg.Resources.GetStream(name)
	if err != nil {
		return nil, fmt.Errorf("track %q: %w", name, err)
	}

	t := NewTrack(name, s.cfg.Mixer.Format(), s.cfg.Registry, s.log)
	if err := t.BindAdjustments(s.Adjustments); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("track %q: %w", name, err)
	}

	decodeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel

	s.Add(t)
	s.cfg.Mixer.AddAsync(ctx, t)

	go streamDecode(decodeCtx, s.cfg.Decoders, name, rc, t, s.log)

	return t, nil
}

// GetVirtual creates a silent track of length ms following clock.
func (s *TrackStore) GetVirtual(length float64, clock Clock) (*TrackVirtual, error) {
	if err := s.CheckDisposed(); err != nil {
		return nil, err
	}

	t := NewTrackVirtual(length, clock, s.cfg.Registry, s.log)
	if err := t.BindAdjustments(s.Adjustments); err != nil {
		return nil, fmt.Errorf("virtual track: %w", err)
	}

	s.Add(t)

	return t, nil
}

// Finalize releases the store's adjustment node.
func (s *TrackStore) Finalize(ctx context.Context) {
	s.Collection.Finalize(ctx)
	s.Adjustments.Release()
}

// SampleStore creates samples by name and caches them. Its adjustments are
// the parent of every sample.
type SampleStore struct {
	*component.Collection[*Sample]
	*adjust.Adjustments

	cfg StoreConfig
	log zerolog.Logger

	mu          sync.Mutex
	cache       map[string]*Sample
	concurrency int
}

// NewSampleStore creates an empty sample store.
func NewSampleStore(cfg StoreConfig) *SampleStore {
	log := cfg.Log.With().Str("store", "samples").Logger()

	return &SampleStore{
		Collection:  component.NewCollection[*Sample](component.NewBase("sample_store", log)),
		Adjustments: adjust.New(cfg.Registry),
		cfg:         cfg,
		log:         log,
		cache:       make(map[string]*Sample),
		concurrency: DefaultConcurrency,
	}
}

// SetConcurrency sets the playing channel limit of samples created later.
func (s *SampleStore) SetConcurrency(n int) {
	s.mu.Lock()
	s.concurrency = max(n, 1)
	s.mu.Unlock()
}

// Get returns the cached sample for name, or creates it and decodes it in
// the background.
func (s *SampleStore) Get(name string) (*Sample, error) {
	if err := s.CheckDisposed(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if smp, ok := s.cache[name]; ok && smp.IsAlive() {
		return smp, nil
	}

	rc, err := s.cfg.Resources.GetStream(name)
	if err != nil {
		return nil, fmt.Errorf("sample %q: %w", name, err)
	}

	smp := NewSample(name, s.cfg.Mixer.Format(), s.cfg.Mixer, s.cfg.Registry, s.log)
	smp.SetConcurrency(s.concurrency)
	if err := smp.BindAdjustments(s.Adjustments); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("sample %q: %w", name, err)
	}

	s.cache[name] = smp
	s.Add(smp)

	go func() {
		samples, info, err := decodeAll(s.cfg.Decoders, name, rc)
		if err != nil {
			smp.Fail(err)
			return
		}

		smp.Load(samples, info)
	}()

	return smp, nil
}

// Update drops disposed samples from the cache after updating them.
func (s *SampleStore) Update(ctx context.Context) {
	s.Collection.Update(ctx)

	s.mu.Lock()
	for name, smp := range s.cache {
		if !smp.IsAlive() {
			delete(s.cache, name)
		}
	}
	s.mu.Unlock()
}

// Finalize releases the store's adjustment node.
func (s *SampleStore) Finalize(ctx context.Context) {
	s.Collection.Finalize(ctx)
	s.Adjustments.Release()
}
