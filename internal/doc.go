// Package internal contains the core implementation packages for sitepipe.
//
// This package follows Go's internal package convention, making these
// packages unavailable for import by external modules while providing
// all the core functionality for the sitepipe CLI tool.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - config: Configuration defaults, loading and validation
//   - errors: Typed pipeline errors and fix suggestions
//   - globset: Include/exclude glob sets and base-relative file resolution
//   - logging: Structured logging and console status lines
//   - task: Task graph, builder and the sequence/parallel runner
//   - transform: Command, copy and clean tools behind transform tasks
//   - watcher: File system monitoring with debouncing
//   - watch: Watch bindings from changed files to rebuilds and reloads
//   - server: Static dev server with live reload over WebSocket
//   - pipeline: The build and start lifecycles wired from configuration
//   - version: Build information
//
// # Inter-Package Communication
//
// Packages communicate through small interfaces:
//
//   - The runner only sees task.Tool, so transforms and serve are interchangeable
//   - The watch session talks to the server through Reloader
//   - The watcher delivers debounced ChangeEvents to the session
//   - Errors carry a code that the CLI turns into suggestions
//
// # Security Considerations
//
//   - Config validates paths and rejects shell metacharacters in commands
//   - External tools run without a shell, with arguments passed verbatim
//   - Clean refuses to remove anything outside the working directory
//   - The dev server only serves files under the build directory
//   - WebSocket upgrades check the request origin
package internal
