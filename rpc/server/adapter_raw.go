package server

import (
	"context"

	"github.com/ValentinKolb/kvproxy/lib/classify"
	"github.com/ValentinKolb/kvproxy/lib/kv"
	"github.com/ValentinKolb/kvproxy/lib/proxy"
	"github.com/ValentinKolb/kvproxy/rpc/common"
)

// NewRawServerAdapter creates an adapter serving raw.* messages from client
func NewRawServerAdapter(client kv.IRawClient) IRPCServerAdapter {
	return &rawServerAdapter{proxy: proxy.NewRawProxy(client)}
}

type rawServerAdapter struct {
	proxy *proxy.RawProxy
}

func (a *rawServerAdapter) Handle(ctx context.Context, req *common.Message) *common.Message {
	switch req.MsgType {
	case common.MsgTRawGet:
		value, err := a.proxy.Get(ctx, req.Key)
		return common.NewRawGetResponse(value, err)
	case common.MsgTRawPut:
		return common.NewRawPutResponse(a.proxy.Put(ctx, req.Key, req.Value))
	case common.MsgTRawDelete:
		return common.NewRawDeleteResponse(a.proxy.Delete(ctx, req.Key))
	default:
		return common.NewErrorResponse(
			classify.InvalidArgument("unsupported message type %s for a raw shard", req.MsgType),
		)
	}
}

func (a *rawServerAdapter) Close(_ context.Context) error {
	return a.proxy.Close()
}
