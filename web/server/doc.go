// Package server manages the HTTP server lifecycle with graceful shutdown.
//
// It wraps [net/http.Server] and handles OS signal interception (SIGINT,
// SIGTERM), background workers tied to the server's lifetime, in-flight
// request draining, and ordered cleanup of external resources.
//
// Basic usage:
//
//	srv := server.New(app,
//		server.WithHost(":3000"),
//		server.WithBackground(registry.Run),
//		server.WithShutdownFunc(func(ctx context.Context) error {
//			registry.Close()
//			return nil
//		}),
//	)
//	if err := srv.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package server
