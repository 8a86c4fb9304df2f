package database

import (
	"time"

	"github.com/CodingCaius/gedis/interface/redis"
	"github.com/hdt3213/rdb/core"
)

// CmdLine is alias for [][]byte, represents a command line
type CmdLine = [][]byte

// DB is the interface for redis style storage engine
type DB interface {
	Exec(client redis.Connection, cmdLine [][]byte) redis.Reply
	AfterClientClose(c redis.Connection)
	Close()
	LoadRDB(dec *core.Decoder) error
}

// DBEngine is a more powerful engine, providing the abilities the
// persistence layer needs (aof rewrite, rdb dump)
type DBEngine interface {
	DB
	ForEach(dbIndex int, cb func(key string, data *DataEntity, expiration *time.Time) bool)
	GetDBSize(dbIndex int) (int, int)
}

// DataEntity stores data bound to a key, including a string, list, hash, set and so on
type DataEntity struct {
	Data interface{}
}
