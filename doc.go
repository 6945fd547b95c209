// SPDX-License-Identifier: EPL-2.0

// Package audrt is a cooperatively scheduled audio runtime.
//
// A Manager owns a dedicated audio thread that updates every component
// once per frame: mixers, track and sample stores and, through them, every
// track, sample and sample channel. State changes requested from other
// goroutines are queued and applied on that thread; calls made from the
// audio thread run inline.
//
//	cfg, _ := config.Load("audrt.yaml")
//	backend, _ := device.Select(cfg.Backend, log)
//
//	m, err := audrt.New(cfg, backend,
//	    store.NewFileStore("music", cfg.TrackExtensions...),
//	    store.NewFileStore("sfx", cfg.SampleExtensions...),
//	    audrt.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	if err := m.Start(ctx); err != nil {
//	    return err
//	}
//
//	track, _ := m.Tracks().Get(ctx, "theme")
//	_ = track.Start(ctx)
//
// The device callback pulls audio from every mixer. Device loss is
// detected by polling; the manager reopens the preferred or default device
// without touching the channels.
//
// Formats come from the formats sub packages, device backends from the
// device sub packages; a backend is available once its package is
// imported.
package audrt
