// Package cmd implements the command-line interface of kvproxy. It provides a
// hierarchical command structure for running the server and for talking to it
// as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts and configures the proxy server
//   - raw: Raw key-value operations (get, put, delete)
//   - txn: Transactional operations on server side sessions (begin, get, put,
//     delete, commit, rollback), scripted transactions (run) and a load
//     generator (perf)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set with an environment variable KVPROXY_<FLAG>, dashes
// replaced by underscores (e.g. KVPROXY_LOG_LEVEL=debug). Variables are also read
// from .env and .env.local in the working directory.
//
// See kvproxy -help for a list of all commands.
package cmd
