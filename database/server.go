package database

import (
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CodingCaius/gedis/aof"
	"github.com/CodingCaius/gedis/config"
	"github.com/CodingCaius/gedis/interface/database"
	"github.com/CodingCaius/gedis/interface/redis"
	"github.com/CodingCaius/gedis/lib/logger"
	"github.com/CodingCaius/gedis/lib/utils"
	"github.com/CodingCaius/gedis/pubsub"
	"github.com/CodingCaius/gedis/redis/protocol"
)

var gedisVersion = "1.0.2"

// Server is a redis-server with full capabilities including multiple database,
// transactions, rdb load and aof persistence
type Server struct {
	dbSet []*atomic.Value // *DB

	// handle publish/subscribe
	hub *pubsub.Hub
	// handle aof persistence
	persister *aof.Persister

	// connections holding at least one watched key, enumerated by
	// touchWatchedKeysOnFlush
	watchingMu    sync.Mutex
	watchingConns map[uint64]redis.Connection

	// connections mirroring executed commands via MONITOR
	monitorsMu sync.Mutex
	monitors   map[uint64]redis.Connection
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	return err == nil && !info.IsDir()
}

// NewStandaloneServer creates a standalone redis server with multi database
// and all other functions
func NewStandaloneServer() *Server {
	server := MakeBasicServer()
	err := os.MkdirAll(config.GetTmpDir(), os.ModePerm)
	if err != nil {
		panic(fmt.Errorf("create tmp dir failed: %v", err))
	}

	validAof := false
	if config.Properties.AppendOnly {
		validAof = fileExists(config.Properties.AppendFilename)
		aofHandler, err := NewPersister(server,
			config.Properties.AppendFilename, true, config.Properties.AppendFsync)
		if err != nil {
			panic(err)
		}
		server.bindPersister(aofHandler)
	}
	if config.Properties.RDBFilename != "" && !validAof {
		// load rdb only if no valid aof file present
		err := server.loadRdbFile()
		if err != nil {
			logger.Error(err)
		}
	}
	return server
}

// MakeBasicServer creates a server only with basic abilities.
// It is used for aof rewrite and tests
func MakeBasicServer() *Server {
	if config.Properties.Databases == 0 {
		config.Properties.Databases = 16
	}
	server := &Server{
		watchingConns: make(map[uint64]redis.Connection),
		monitors:      make(map[uint64]redis.Connection),
	}
	server.dbSet = make([]*atomic.Value, config.Properties.Databases)
	for i := range server.dbSet {
		singleDB := makeDB()
		singleDB.index = i
		holder := &atomic.Value{}
		holder.Store(singleDB)
		server.dbSet[i] = holder
	}
	server.hub = pubsub.MakeHub()
	return server
}

// Exec executes command
// parameter `cmdLine` contains command and its arguments, for example: "set key value"
func (server *Server) Exec(c redis.Connection, cmdLine [][]byte) (result redis.Reply) {
	defer func() {
		if err := recover(); err != nil {
			logger.Warn(fmt.Sprintf("error occurs: %v\n%s", err, string(debug.Stack())))
			result = &protocol.UnknownErrReply{}
		}
	}()

	cmdName := strings.ToLower(string(cmdLine[0]))
	// ping
	if cmdName == "ping" {
		return Ping(c, cmdLine[1:])
	}
	// authenticate
	if cmdName == "auth" {
		return Auth(c, cmdLine[1:])
	}
	if !isAuthenticated(c) {
		return protocol.MakeErrReply("NOAUTH Authentication required")
	}

	// MULTI and the EXEC of an open transaction reach the monitors as the
	// markers around the committed queue, queued commands are mirrored when
	// they actually run. Everything else, including a stray EXEC and a
	// DISCARD closing a transaction, is fed right away.
	inMulti := c != nil && c.InMultiState()
	if cmdName != "multi" && !(inMulti && cmdName != "discard") {
		server.feedMonitors(c, cmdLine)
	}

	// transaction control commands, they can not be queued themselves
	switch cmdName {
	case "multi":
		if len(cmdLine) != 1 {
			return protocol.MakeArgNumErrReply(cmdName)
		}
		return StartMulti(c)
	case "discard":
		if len(cmdLine) != 1 {
			return protocol.MakeArgNumErrReply(cmdName)
		}
		return DiscardMulti(server, c)
	case "exec":
		if len(cmdLine) != 1 {
			return protocol.MakeArgNumErrReply(cmdName)
		}
		return execMulti(server, c)
	case "watch":
		if !validateArity(-2, cmdLine) {
			return protocol.MakeArgNumErrReply(cmdName)
		}
		if c != nil && c.InMultiState() {
			return protocol.MakeErrReply("ERR WATCH inside MULTI is not allowed")
		}
		return Watch(server, c, cmdLine[1:])
	case "unwatch":
		if len(cmdLine) != 1 {
			return protocol.MakeArgNumErrReply(cmdName)
		}
		return execUnwatch(server, c)
	}

	// queue commands while a transaction is open
	if c != nil && c.InMultiState() {
		return EnqueueCmd(c, cmdLine)
	}

	// special commands which are handled by the server itself
	switch cmdName {
	case "subscribe":
		if len(cmdLine) < 2 {
			return protocol.MakeArgNumErrReply("subscribe")
		}
		return pubsub.Subscribe(server.hub, c, cmdLine[1:])
	case "unsubscribe":
		return pubsub.UnSubscribe(server.hub, c, cmdLine[1:])
	case "publish":
		return pubsub.Publish(server.hub, cmdLine[1:])
	case "info":
		return Info(server, cmdLine[1:])
	case "dbsize":
		if len(cmdLine) != 1 {
			return protocol.MakeArgNumErrReply(cmdName)
		}
		return DbSize(c, server)
	case "monitor":
		if len(cmdLine) != 1 {
			return protocol.MakeArgNumErrReply(cmdName)
		}
		return execMonitor(server, c)
	case "bgrewriteaof":
		if !config.Properties.AppendOnly {
			return protocol.MakeErrReply("AppendOnly is false, you can't rewrite aof file")
		}
		return BGRewriteAOF(server, cmdLine[1:])
	case "rewriteaof":
		if !config.Properties.AppendOnly {
			return protocol.MakeErrReply("AppendOnly is false, you can't rewrite aof file")
		}
		return RewriteAOF(server, cmdLine[1:])
	case "flushall":
		if len(cmdLine) != 1 {
			return protocol.MakeArgNumErrReply(cmdName)
		}
		return server.flushAll()
	case "flushdb":
		if len(cmdLine) != 1 {
			return protocol.MakeArgNumErrReply(cmdName)
		}
		return server.execFlushDB(c.GetDBIndex())
	case "select":
		if len(cmdLine) != 2 {
			return protocol.MakeArgNumErrReply("select")
		}
		return execSelect(c, server, cmdLine[1:])
	}

	// normal commands
	dbIndex := c.GetDBIndex()
	selectedDB, errReply := server.selectDB(dbIndex)
	if errReply != nil {
		return errReply
	}
	return selectedDB.Exec(c, cmdLine)
}

// AfterClientClose does some clean after client close connection.
// A dropped connection behaves as an implicit DISCARD
func (server *Server) AfterClientClose(c redis.Connection) {
	pubsub.UnsubscribeAll(server.hub, c)
	server.resetTransaction(c)
	server.monitorsMu.Lock()
	delete(server.monitors, c.ID())
	server.monitorsMu.Unlock()
}

// Close graceful shutdown database
func (server *Server) Close() {
	if server.persister != nil {
		server.persister.Close()
	}
}

func (server *Server) selectDB(dbIndex int) (*DB, *protocol.StandardErrReply) {
	if dbIndex >= len(server.dbSet) || dbIndex < 0 {
		return nil, protocol.MakeErrReply("ERR DB index is out of range")
	}
	return server.dbSet[dbIndex].Load().(*DB), nil
}

func (server *Server) mustSelectDB(dbIndex int) *DB {
	selectedDB, err := server.selectDB(dbIndex)
	if err != nil {
		panic(err)
	}
	return selectedDB
}

func execSelect(c redis.Connection, server *Server, args [][]byte) redis.Reply {
	dbIndex, err := strconv.Atoi(string(args[0]))
	if err != nil {
		return protocol.MakeErrReply("ERR invalid DB index")
	}
	if dbIndex >= len(server.dbSet) || dbIndex < 0 {
		return protocol.MakeErrReply("ERR DB index is out of range")
	}
	c.SelectDB(dbIndex)
	return protocol.MakeOkReply()
}

// execFlushDB flushes one database, the watchers of its keys are notified first
func (server *Server) execFlushDB(dbIndex int) redis.Reply {
	db, errReply := server.selectDB(dbIndex)
	if errReply != nil {
		return errReply
	}
	server.touchWatchedKeysOnFlush(dbIndex)
	db.Flush()
	db.addAof(utils.ToCmdLine("FlushDB"))
	return protocol.MakeOkReply()
}

// flushAll flushes all databases
func (server *Server) flushAll() redis.Reply {
	server.touchWatchedKeysOnFlush(-1)
	for i := range server.dbSet {
		server.mustSelectDB(i).Flush()
	}
	if server.persister != nil {
		server.persister.SaveCmdLine(0, utils.ToCmdLine("FlushAll"))
	}
	return protocol.MakeOkReply()
}

// GetDBSize returns keys count and ttl key count of the given database
func (server *Server) GetDBSize(dbIndex int) (int, int) {
	db := server.mustSelectDB(dbIndex)
	return db.data.Len(), db.ttlMap.Len()
}

// ForEach traverses all the keys in the given database
func (server *Server) ForEach(dbIndex int, cb func(key string, data *database.DataEntity, expiration *time.Time) bool) {
	server.mustSelectDB(dbIndex).ForEach(cb)
}

/* ---- Watching Connections ---- */

func (server *Server) rememberWatching(c redis.Connection) {
	server.watchingMu.Lock()
	defer server.watchingMu.Unlock()
	server.watchingConns[c.ID()] = c
}

func (server *Server) forgetWatching(c redis.Connection) {
	server.watchingMu.Lock()
	defer server.watchingMu.Unlock()
	delete(server.watchingConns, c.ID())
}

func (server *Server) listWatchingConns() []redis.Connection {
	server.watchingMu.Lock()
	defer server.watchingMu.Unlock()
	conns := make([]redis.Connection, 0, len(server.watchingConns))
	for _, conn := range server.watchingConns {
		conns = append(conns, conn)
	}
	return conns
}

/* ---- AOF Persistence ---- */

// NewPersister creates an aof.Persister for the server
func NewPersister(db database.DBEngine, filename string, load bool, fsync string) (*aof.Persister, error) {
	return aof.NewPersister(db, filename, load, fsync, func() database.DBEngine {
		return MakeBasicServer()
	})
}

func (server *Server) bindPersister(aofHandler *aof.Persister) {
	server.persister = aofHandler
	// bind SaveCmdLine
	for _, db := range server.dbSet {
		singleDB := db.Load().(*DB)
		singleDB.addAof = func(line CmdLine) {
			if config.Properties.AppendOnly { // config may be changed during runtime
				server.persister.SaveCmdLine(singleDB.index, line)
			}
		}
	}
}

// BGRewriteAOF asynchronously rewrites Append-Only-File
func BGRewriteAOF(db *Server, args [][]byte) redis.Reply {
	go db.persister.Rewrite()
	return protocol.MakeStatusReply("Background append only file rewriting started")
}

// RewriteAOF start Append-Only-File rewriting and blocked until it finished
func RewriteAOF(db *Server, args [][]byte) redis.Reply {
	err := db.persister.Rewrite()
	if err != nil {
		return protocol.MakeErrReply(err.Error())
	}
	return protocol.MakeOkReply()
}
