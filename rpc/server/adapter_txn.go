package server

import (
	"context"

	"github.com/ValentinKolb/kvproxy/lib/classify"
	"github.com/ValentinKolb/kvproxy/lib/kv"
	"github.com/ValentinKolb/kvproxy/lib/proxy"
	"github.com/ValentinKolb/kvproxy/rpc/common"
)

// NewTxnServerAdapter creates an adapter serving txn.* messages from client
func NewTxnServerAdapter(client kv.ITxnClient, opts proxy.TxnOptions) *TxnServerAdapter {
	return &TxnServerAdapter{proxy: proxy.NewTxnProxy(client, opts)}
}

// TxnServerAdapter serves a transactional shard. It is exported so the server
// can report the number of live sessions.
type TxnServerAdapter struct {
	proxy *proxy.TxnProxy
}

func (a *TxnServerAdapter) Handle(ctx context.Context, req *common.Message) *common.Message {
	switch req.MsgType {
	case common.MsgTTxnBegin:
		id, err := a.proxy.Begin(ctx, kv.Mode(req.Mode))
		return common.NewTxnBeginResponse(id, err)
	case common.MsgTTxnGet:
		value, err := a.proxy.Get(ctx, req.TxnID, req.Key)
		return common.NewTxnGetResponse(value, err)
	case common.MsgTTxnPut:
		return common.NewTxnPutResponse(a.proxy.Put(ctx, req.TxnID, req.Key, req.Value))
	case common.MsgTTxnDelete:
		return common.NewTxnDeleteResponse(a.proxy.Delete(ctx, req.TxnID, req.Key))
	case common.MsgTTxnCommit:
		return common.NewTxnCommitResponse(a.proxy.Commit(ctx, req.TxnID))
	case common.MsgTTxnRollback:
		return common.NewTxnRollbackResponse(a.proxy.Rollback(ctx, req.TxnID))
	default:
		return common.NewErrorResponse(
			classify.InvalidArgument("unsupported message type %s for a txn shard", req.MsgType),
		)
	}
}

// Sessions returns the number of live transactions
func (a *TxnServerAdapter) Sessions() int {
	return a.proxy.Len()
}

func (a *TxnServerAdapter) Close(ctx context.Context) error {
	return a.proxy.Close(ctx)
}
