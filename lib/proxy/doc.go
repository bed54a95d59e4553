/*
Package proxy contains the two services the RPC server exposes on top of the kv
client capability.

RawProxy is stateless: every call is forwarded to a kv.IRawClient and its
result is classified.

TxnProxy keeps server side transactions alive between otherwise stateless
calls. A transaction is created by Begin and referenced afterwards by the
session id Begin returned. Session ids are handed out by an atomic counter
starting at 1 and are never reused while the session they name is alive.

	id, _ := p.Begin(ctx, kv.ModeOptimistic)
	_ = p.Put(ctx, id, []byte("a"), []byte("b"))
	v, _ := p.Get(ctx, id, []byte("a")) // "b"
	_ = p.Commit(ctx, id)
	_, err := p.Get(ctx, id, []byte("a")) // FailedPrecondition

Commit and Rollback always end the session, even if the backend call fails.
Any later reference to the id is answered with classify.ProtocolViolation.

All errors returned by this package are grpc status errors produced by the
classify package.
*/
package proxy
