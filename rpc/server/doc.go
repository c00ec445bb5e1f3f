// Package server implements the RPC server for binKV. It provides an adapter
// that translates RPC requests into bin expiry operations, along with the
// core server implementation that owns the record store and wires the
// transport and serializer together.
//
// The package focuses on:
//   - Server-side RPC request handling for bin and sweep operations
//   - Adapter pattern to decouple application logic from RPC mechanisms
//   - Optional Prometheus metrics endpoint
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for server adapters,
//     with the Handle method that processes incoming requests against a
//     record.IRecordStore.
//
//   - NewExpBinServerAdapter: Factory function creating the adapter for bin
//     expiry operations, translating RPC requests to expbin.Module and
//     expbin.Sweeper calls.
//
//   - NewRPCServer: Factory function creating a configured server with the
//     specified transport and serializer mechanisms.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Endpoint:      "0.0.0.0:8080",
//	  TimeoutSecond: 5,
//	  LogLevel:      "info",
//	}
//
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPServerTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	The server implementation is thread-safe and can handle concurrent
//	requests across multiple connections. Each request is processed
//	independently. The Serve method is not thread-safe and should be called
//	only once.
package server
