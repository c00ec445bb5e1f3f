// Package client implements the RPC client for binKV. It provides a remote
// surface of the bin expiry module that communicates with a binKV server via
// RPC.
//
// The package focuses on:
//   - Transparent RPC access to the bin expiry operations
//   - Integration with the transport and serialization layers
//   - Error handling and conversion between RPC and domain errors
//
// Key Components:
//
//   - IExpBinClient: Interface mirroring the bin expiry module plus sweep
//     control, using the numeric TTL wire convention (-1 preserve, 0 normal,
//     >0 expire after seconds).
//
//   - NewExpBinClient: Factory function that creates a client implementing
//     IExpBinClient. The client forwards all operations to the remote server
//     via the configured transport layer.
//
// Usage Example:
//
//	// Configure the client
//	config := common.ClientConfig{
//	  Endpoints:              []string{"localhost:5000"},
//	  TimeoutSecond:          5,
//	  RetryCount:             3,
//	  ConnectionsPerEndpoint: 1,
//	}
//
//	// Create the client
//	c, _ := client.NewExpBinClient(config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//
//	// Use the client
//	c.Put("users", "sessions", "alice", "token", []byte("secret"), 60)
//	values, _ := c.Get("users", "sessions", "alice", []string{"token"})
//
// Performance Considerations:
//
//   - For applications that frequently send large payloads, increasing ConnectionsPerEndpoint
//     can improve throughput by allowing parallel requests.
//
//   - For small messages, a single connection per endpoint is often more efficient due to
//     reduced connection overhead.
//
//   - The choice of serializer significantly affects performance. The binary serializer
//     provides the best performance and smallest payload size.
//
// Thread Safety:
//
//	The client implementation is thread-safe and can be used concurrently from
//	multiple goroutines without additional synchronization.
package client
