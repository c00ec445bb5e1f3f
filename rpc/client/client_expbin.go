package client

import (
	"github.com/StefanHein/binKV/rpc/common"
	"github.com/StefanHein/binKV/rpc/serializer"
	"github.com/StefanHein/binKV/rpc/transport"
)

// IExpBinClient is the remote surface of the bin expiry module. TTL values
// follow the numeric wire convention: -1 preserve (or never expires), 0
// normal lifetime, >0 expire after that many seconds.
type IExpBinClient interface {
	// Get reads the named bins of one record. The result is aligned by
	// position with the requested names; a nil slot marks an absent or
	// expired bin.
	Get(namespace, set, key string, bins []string) ([][]byte, error)
	// Put creates or updates a single bin.
	Put(namespace, set, key, bin string, value []byte, ttlSec int64) error
	// Puts applies a batch of put operations to one record atomically.
	Puts(namespace, set, key string, ops []common.BinOp) error
	// Touch updates the expiry metadata of existing bins without changing
	// their values. The Value field of each op is ignored.
	Touch(namespace, set, key string, ops []common.BinOp) error
	// BinTTL queries the remaining lifetime of one bin. ok is false if the
	// bin is absent or expired; ttlSec is -1 for a bin that never expires.
	BinTTL(namespace, set, key, bin string) (ttlSec int64, ok bool, err error)
	// Sweep launches a background sweep over the namespace/set and returns
	// the scan id.
	Sweep(namespace, set string, candidates []string) (uint64, error)
	// AwaitSweep blocks until the identified sweep completes. A timeout of
	// 0 waits indefinitely.
	AwaitSweep(id uint64, timeoutSec int64) error
	// Info returns json encoded store metadata.
	Info() ([]byte, error)
	// Close closes the underlying transport.
	Close() error
}

// NewExpBinClient creates a new RPC client for the bin expiry module
// The function takes a config, a transport and a serializer as parameters
func NewExpBinClient(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (IExpBinClient, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	// Create a new RPC client
	c := expBinClient{
		rpcClientAdapter{
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	// Return the RPC client
	return &c, nil
}

type expBinClient struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see client.IExpBinClient)
// --------------------------------------------------------------------------

func (c *expBinClient) Get(namespace, set, key string, bins []string) ([][]byte, error) {
	req := common.NewGetRequest(namespace, set, key, bins)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *expBinClient) Put(namespace, set, key, bin string, value []byte, ttlSec int64) error {
	req := common.NewPutRequest(namespace, set, key, bin, value, ttlSec)
	_, err := invokeRPCRequest(req, c.transport, c.serializer)
	return err
}

func (c *expBinClient) Puts(namespace, set, key string, ops []common.BinOp) error {
	req := common.NewPutsRequest(namespace, set, key, ops)
	_, err := invokeRPCRequest(req, c.transport, c.serializer)
	return err
}

func (c *expBinClient) Touch(namespace, set, key string, ops []common.BinOp) error {
	req := common.NewTouchRequest(namespace, set, key, ops)
	_, err := invokeRPCRequest(req, c.transport, c.serializer)
	return err
}

func (c *expBinClient) BinTTL(namespace, set, key, bin string) (int64, bool, error) {
	req := common.NewTTLRequest(namespace, set, key, bin)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return 0, false, err
	}
	return resp.TTLSec, resp.Ok, nil
}

func (c *expBinClient) Sweep(namespace, set string, candidates []string) (uint64, error) {
	req := common.NewSweepRequest(namespace, set, candidates)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return 0, err
	}
	return resp.ScanID, nil
}

func (c *expBinClient) AwaitSweep(id uint64, timeoutSec int64) error {
	req := common.NewSweepAwaitRequest(id, timeoutSec)
	_, err := invokeRPCRequest(req, c.transport, c.serializer)
	return err
}

func (c *expBinClient) Info() ([]byte, error) {
	req := common.NewInfoRequest()
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return nil, err
	}
	return resp.Meta, nil
}

func (c *expBinClient) Close() error {
	return c.transport.Close()
}
