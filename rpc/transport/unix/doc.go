// Package unix runs the framed base transport over Unix domain sockets, for a
// proxy and its clients on the same machine. The endpoint is a socket path,
// a stale socket file is removed before listening.
//
// Default request buffer size is 64 KB.
package unix
