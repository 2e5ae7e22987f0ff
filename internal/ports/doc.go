// Package ports defines the interfaces that connect the application layer to
// infrastructure adapters.
//
// # Port Interfaces
//
//   - [FrameStore] / [Session]: queries the imaging database for frame records
//   - [Storage]: reads tile content for checksumming
//   - [Bundler]: runs the external experiment bundle writer
//   - [Logger]: structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// The application layer (internal/app) depends only on these interfaces.
// Adapters (internal/adapters) implement them with SQLite, the local file
// system, HTTP, os/exec and zerolog.
package ports
