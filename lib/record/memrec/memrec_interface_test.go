package memrec

import (
	"testing"

	"github.com/StefanHein/binKV/lib/record"
	"github.com/StefanHein/binKV/lib/record/rectest"
)

func Test(t *testing.T) {
	rectest.RunRecordStoreTests(t, "MemRec", func() record.IRecordStore {
		return New(nil)
	})
}

func TestSingleShard(t *testing.T) {
	// a single shard exercises the collision and ordering paths harder
	rectest.RunRecordStoreTests(t, "MemRec(1-shard)", func() record.IRecordStore {
		return New(&Options{NumShards: 1})
	})
}
