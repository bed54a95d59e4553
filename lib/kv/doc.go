// Package kv defines the client capability the proxy consumes: a stateless raw
// client and a transactional client that hands out single-owner transactions.
// The proxy never talks to a storage engine directly, it only sees these
// interfaces.
//
// The package focuses on:
//   - A small interface surface (IRawClient, ITxnClient, ITxn)
//   - A backend independent error taxonomy (Kind) built once at the backend boundary
//   - Transaction concurrency modes (optimistic, pessimistic)
//
// Key Components:
//
//   - IRawClient: Get, Put and Delete against single keys. A missing key is
//     reported through the found flag, never as an error.
//
//   - ITxnClient / ITxn: Begin returns a transaction that buffers reads and
//     writes until Commit or Rollback. A transaction is not safe for concurrent
//     use and must not be used after it was finalized.
//
//   - Error / Kind: Every failure returned by a backend is an *Error carrying
//     a Kind. Upper layers classify failures by Kind only, they never inspect
//     backend specific errors.
//
// Implementations:
//
//   - badgerkv: Embedded Badger database, raw and transactional. Pessimistic
//     transactions lock keys in an in-process lock table that raw writes and
//     optimistic commits respect as well.
//
//   - rediskv: Raw client on top of a Redis server.
//
//   - kvtest: In-memory mock with fault injection, intended for tests.
package kv
