package server

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/StefanHein/binKV/lib/expbin"
	"github.com/StefanHein/binKV/lib/record"
	"github.com/StefanHein/binKV/rpc/common"
	"github.com/VictoriaMetrics/metrics"
)

func NewExpBinServerAdapter() IRPCServerAdapter {
	return &expBinServerAdapterImpl{}
}

type expBinServerAdapterImpl struct{}

func (adapter *expBinServerAdapterImpl) Handle(req *common.Message, store record.IRecordStore) *common.Message {
	// Check for nil store
	if store == nil {
		return common.NewErrorResponse("handler: store is nil")
	}

	metrics.GetOrCreateCounter(fmt.Sprintf(`binkv_rpc_requests_total{op=%q}`, req.MsgType.String())).Inc()

	// Create the bin expiry module on top of the store
	mod := expbin.NewModule(store)

	// Handle different message types
	switch req.MsgType {
	case common.MsgTBinGet:
		key := record.NewKey(req.Namespace, req.Set, req.Key)
		values, err := mod.Get(key, req.Bins)
		return common.NewGetResponse(values, err)

	case common.MsgTBinPut:
		key := record.NewKey(req.Namespace, req.Set, req.Key)
		err := mod.Put(key, req.Bin, req.Value, expbin.FromSeconds(req.TTLSec))
		return common.NewPutResponse(err)

	case common.MsgTBinPuts:
		key := record.NewKey(req.Namespace, req.Set, req.Key)
		ops := make([]expbin.PutOp, len(req.Ops))
		for i, op := range req.Ops {
			ops[i] = expbin.PutOp{
				Bin:   op.Bin,
				Value: op.Value,
				TTL:   expbin.FromSeconds(op.TTLSec),
			}
		}
		err := mod.Puts(key, ops)
		return common.NewPutsResponse(err)

	case common.MsgTBinTouch:
		key := record.NewKey(req.Namespace, req.Set, req.Key)
		ops := make([]expbin.TouchOp, len(req.Ops))
		for i, op := range req.Ops {
			ops[i] = expbin.TouchOp{
				Bin: op.Bin,
				TTL: expbin.FromTouchSeconds(op.TTLSec),
			}
		}
		err := mod.Touch(key, ops)
		return common.NewTouchResponse(err)

	case common.MsgTBinTTL:
		key := record.NewKey(req.Namespace, req.Set, req.Key)
		remaining, state, err := mod.BinTTL(key, req.Bin)
		switch state {
		case expbin.TTLRemaining:
			return common.NewTTLResponse(int64(remaining), true, err)
		case expbin.TTLNone:
			return common.NewTTLResponse(-1, true, err)
		default:
			return common.NewTTLResponse(0, false, err)
		}

	case common.MsgTSweep:
		sweeper := expbin.NewSweeper(store)
		id, err := sweeper.Sweep(req.Namespace, req.Set, req.Bins)
		return common.NewSweepResponse(id, err)

	case common.MsgTSweepAwait:
		sweeper := expbin.NewSweeper(store)
		err := sweeper.Await(req.ScanID, time.Duration(req.TimeoutSec)*time.Second)
		return common.NewSweepAwaitResponse(err)

	case common.MsgTInfo:
		info, err := store.Info()
		if err != nil {
			return common.NewInfoResponse(nil, err)
		}
		meta, err := json.Marshal(info)
		return common.NewInfoResponse(meta, err)

	default:
		return common.NewErrorResponse(
			fmt.Sprintf("RPC ExpBinAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
