// Package tcp implements TCP socket based transport for the proxy's RPC system.
// It provides concrete implementations of the base package's connector
// interfaces for TCP connections.
//
// This package builds on the base package's transport functionality, inheriting its
// connection pooling, buffer reuse and request routing. See the base package
// documentation for details on the underlying transport mechanisms.
//
// Key Components:
//
//   - clientConnector: TCP specific implementation of base.IClientConnector
//
//   - serverConnector: TCP specific implementation of base.IServerConnector
//
// Both sides apply the SocketConf and TCPConf options (TCP_NODELAY, keep-alive,
// linger, socket buffer sizes) to every connection.
//
// The default server buffer size is set to 512 KB, which provides good performance
// for typical workloads, but can be customized for specific use cases.
package tcp
