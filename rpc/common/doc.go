// Package common provides core data structures and utilities shared across
// the proxy's RPC server, client and command line tools. It defines the wire
// message, the configuration structures and the logger setup.
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication, used for both
//     requests and responses. Which fields are set depends on the MessageType.
//     Responses carry a status code (google.golang.org/grpc/codes) and the
//     error message; Message.Status turns them back into a status error.
//
//   - MessageType: Enumeration of all supported operations, split into raw
//     operations (raw.get, raw.put, raw.delete) and transactional operations
//     (txn.begin, txn.get, txn.put, txn.delete, txn.commit, txn.rollback).
//
//   - ServerConfig: Configuration of the server: shards, transport, backends,
//     session handling and logging.
//
//   - ClientConfig: Configuration for client components, controlling connection
//     parameters, timeouts, and retry behavior.
//
//   - Logger: Implementation of dragonboat's logger.ILogger on top of zap. All
//     packages obtain named loggers via logger.GetLogger and InitLoggers sets
//     the sink and the level for all of them.
package common
