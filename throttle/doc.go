// Package throttle limits how often search queries reach the upstream API.
//
// # Gate
//
// A [Gate] is a leading-edge throttle: the first trigger fires immediately,
// then every trigger is dropped until the cool-down elapses.
//
//	g, err := throttle.NewGate(throttle.WithCooldown(6 * time.Second))
//	fired := g.Attempt(func() { state = search.Reduce(state, action) })
//
// Dropped triggers are discarded, never queued or replayed.
//
// # Transport
//
// [NewRoundTripper] wraps an [http.RoundTripper] with a token bucket from
// [golang.org/x/time/rate] so every session shares one upstream quota:
//
//	rt, err := throttle.NewRoundTripper(
//		throttle.Config{PerMinute: 10, Burst: 1},
//		func() *slog.Logger { return slog.Default() },
//		http.DefaultTransport,
//	)
//
// When the bucket is empty, outbound requests block until a token becomes
// available or the request context ends.
package throttle
