package database

import (
	"fmt"
	"os"

	"github.com/hdt3213/rdb/core"
	rdb "github.com/hdt3213/rdb/parser"

	"github.com/CodingCaius/gedis/config"
	"github.com/CodingCaius/gedis/interface/database"
	"github.com/CodingCaius/gedis/lib/logger"
)

func (server *Server) loadRdbFile() error {
	rdbFile, err := os.Open(config.Properties.RDBFilename)
	if err != nil {
		return fmt.Errorf("open rdb file failed " + err.Error())
	}
	defer func() {
		_ = rdbFile.Close()
	}()
	decoder := rdb.NewDecoder(rdbFile)
	err = server.LoadRDB(decoder)
	if err != nil {
		return fmt.Errorf("dump rdb file failed " + err.Error())
	}
	return nil
}

// LoadRDB real read rdb file
func (server *Server) LoadRDB(dec *core.Decoder) error {
	return dec.Parse(func(o rdb.RedisObject) bool {
		db := server.mustSelectDB(o.GetDBIndex())
		var entity *database.DataEntity
		switch obj := o.(type) {
		case *rdb.StringObject:
			entity = &database.DataEntity{
				Data: obj.Value,
			}
		default:
			logger.Errorf("unsupported rdb object type: %s, key: %s", o.GetType(), o.GetKey())
		}
		if entity != nil {
			db.PutEntity(o.GetKey(), entity)
			if o.GetExpiration() != nil {
				db.Expire(o.GetKey(), *o.GetExpiration())
			}
			// touching is unnecessary during start up
		}
		return true
	})
}
