// Package common provides core data structures and utilities shared across
// the binKV system. It defines fundamental types, configuration structures,
// and protocol elements used by other packages.
//
// The package focuses on:
//   - Message protocol definition for client/server communication
//   - Configuration structures for client and server components
//   - Custom logging implementation shared by all packages
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication, with a
//     flexible structure that adapts to different operation types.
//     Includes factory methods for creating various request and response
//     messages.
//
//   - MessageType: Enumeration defining all supported operation types in
//     the system, categorized into bin operations, sweep operations, and
//     control messages.
//
//   - ServerConfig: Configuration for the server, including record store
//     parameters, network configuration and observability settings.
//
//   - ClientConfig: Configuration for client components, controlling
//     connection parameters, timeouts, and retry behavior.
//
//   - Logger: Custom logging implementation providing consistent
//     formatting across the application.
package common
