package server

import (
	"github.com/StefanHein/binKV/lib/record"
	"github.com/StefanHein/binKV/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response
	// It takes a Message and a record store as parameters.
	// It returns a Message as a response
	// If an error occurs, it is set in the response
	Handle(req *common.Message, store record.IRecordStore) (resp *common.Message)
}
