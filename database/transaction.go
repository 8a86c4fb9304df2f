package database

import (
	"strings"

	"github.com/CodingCaius/gedis/interface/redis"
	"github.com/CodingCaius/gedis/lib/utils"
	"github.com/CodingCaius/gedis/redis/protocol"
)

// A transaction is a batch of commands queued on one connection between MULTI
// and EXEC, committed with optimistic locks over the watched keys.
//
// Connection state moves Idle -> Open (MULTI) -> Committed/Aborted (EXEC) or
// back to Idle (DISCARD). Whatever path is taken, the whole cycle ends in the
// single teardown resetTransaction, including connection close.

// Watch registers the given keys for the connection within its selected database
func Watch(server *Server, conn redis.Connection, args [][]byte) redis.Reply {
	dbIndex := conn.GetDBIndex()
	db, errReply := server.selectDB(dbIndex)
	if errReply != nil {
		return errReply
	}
	for _, bkey := range args {
		db.watchKey(conn, string(bkey))
	}
	server.rememberWatching(conn)
	return protocol.MakeOkReply()
}

// execUnwatch flushes all watched keys of the connection and lowers its dirty flag
func execUnwatch(server *Server, conn redis.Connection) redis.Reply {
	server.unwatchAll(conn)
	// unwatchAll leaves the dirty flag alone, UNWATCH explicitly forgives the conflict
	conn.SetDirtyCAS(false)
	return protocol.MakeOkReply()
}

// unwatchAll removes every watch entry of the connection, both the connection
// side and its registry counterpart. It does not touch the dirty flag.
func (server *Server) unwatchAll(conn redis.Connection) {
	for _, wk := range conn.GetWatchKeys() {
		db, errReply := server.selectDB(wk.DB)
		if errReply != nil {
			continue
		}
		db.unwatchKey(conn.ID(), wk.Key)
	}
	conn.ClearWatchKeys()
	server.forgetWatching(conn)
}

// touchWatchedKeysOnFlush marks the watchers whose watched keys are about to
// be wiped by FLUSHDB/FLUSHALL. dbIndex == -1 means all databases.
//
// It enumerates connections and their watch lists instead of scanning the
// per-key registries, so the cost is bound by the number of outstanding
// watches rather than the keyspace size. Only keys still present at flush
// time dirty their watchers.
func (server *Server) touchWatchedKeysOnFlush(dbIndex int) {
	for _, conn := range server.listWatchingConns() {
		for _, wk := range conn.GetWatchKeys() {
			if dbIndex != -1 && wk.DB != dbIndex {
				continue
			}
			db, errReply := server.selectDB(wk.DB)
			if errReply != nil {
				continue
			}
			if _, exists := db.GetEntity(wk.Key); exists {
				conn.SetDirtyCAS(true)
			}
		}
	}
}

// StartMulti starts a multi commands transaction
func StartMulti(conn redis.Connection) redis.Reply {
	if conn.InMultiState() {
		return protocol.MakeErrReply("ERR MULTI calls can not be nested")
	}
	conn.SetMultiState(true)
	return protocol.MakeOkReply()
}

// EnqueueCmd puts command line into the pending queue of the open transaction.
// A malformed command is rejected right away and poisons the transaction, the
// failure will surface again as an abort at EXEC time.
func EnqueueCmd(conn redis.Connection, cmdLine [][]byte) redis.Reply {
	cmdName := strings.ToLower(string(cmdLine[0]))
	cmd, ok := cmdTable[cmdName]
	if !ok {
		errReply := protocol.MakeErrReply("ERR unknown command '" + cmdName + "'")
		conn.AddTxError(errReply)
		return errReply
	}
	if cmd.flags&flagSpecial > 0 {
		errReply := protocol.MakeErrReply("ERR command '" + cmdName + "' cannot be used in MULTI")
		conn.AddTxError(errReply)
		return errReply
	}
	if !validateArity(cmd.arity, cmdLine) {
		errReply := protocol.MakeArgNumErrReply(cmdName)
		conn.AddTxError(errReply)
		return errReply
	}
	conn.EnqueueCmd(cmdLine)
	return protocol.MakeQueuedReply()
}

// DiscardMulti drops the pending transaction
func DiscardMulti(server *Server, conn redis.Connection) redis.Reply {
	if !conn.InMultiState() {
		return protocol.MakeErrReply("ERR DISCARD without MULTI")
	}
	server.resetTransaction(conn)
	return protocol.MakeOkReply()
}

// execMulti commits or aborts the pending transaction.
//
// All abort conditions are checked before any queued command runs, an EXEC is
// never left half-applied. On commit the queued commands run strictly in
// queued order inside one critical section over every key the batch touches,
// and the batch is propagated to the aof/replication consumers as one unit,
// opened by a MULTI marker before the first mutating command.
func execMulti(server *Server, conn redis.Connection) redis.Reply {
	if !conn.InMultiState() {
		return protocol.MakeErrReply("ERR EXEC without MULTI")
	}
	defer server.resetTransaction(conn)

	// dirtyExec wins over dirtyCAS: a poisoned queue is an error, a touched
	// watched key is a plain cancellation
	if len(conn.GetTxErrors()) > 0 {
		server.feedMonitors(conn, utils.ToCmdLine("EXEC"))
		return protocol.MakeErrReply("EXECABORT Transaction discarded because of previous errors.")
	}
	db, errReply := server.selectDB(conn.GetDBIndex())
	if errReply != nil {
		server.feedMonitors(conn, utils.ToCmdLine("EXEC"))
		return errReply
	}
	cmdLines := conn.GetQueuedCmdLine()

	// the whole batch runs as one critical section over its keys, other
	// connections may interleave only between top-level commands. The watched
	// keys join the read set, a writer touching them either finishes before
	// the locks are taken (and is seen by the dirty check below) or waits
	// until the batch is done.
	writeKeys := make([]string, 0) // may contain duplicates
	readKeys := make([]string, 0)
	for _, cmdLine := range cmdLines {
		write, read := GetRelatedKeys(cmdLine)
		writeKeys = append(writeKeys, write...)
		readKeys = append(readKeys, read...)
	}
	for _, wk := range conn.GetWatchKeys() {
		if wk.DB == conn.GetDBIndex() {
			readKeys = append(readKeys, wk.Key)
		}
	}
	db.RWLocks(writeKeys, readKeys)
	defer db.RWUnLocks(writeKeys, readKeys)

	if conn.IsDirtyCAS() {
		server.feedMonitors(conn, utils.ToCmdLine("EXEC"))
		return protocol.MakeNullMultiBulkReply()
	}

	// release the watch bookkeeping before running the queue, so writes made
	// by this very batch can not dirty the committing transaction
	server.unwatchAll(conn)

	results := make([]redis.Reply, 0, len(cmdLines))
	beginEmitted := false
	for _, cmdLine := range cmdLines {
		cmdName := strings.ToLower(string(cmdLine[0]))
		if !beginEmitted && !isReadOnlyCommand(cmdName) {
			// open the propagation unit, at most once per EXEC and only if
			// the batch mutates anything at all
			db.addAof(utils.ToCmdLine("MULTI"))
			server.feedMonitors(conn, utils.ToCmdLine("MULTI"))
			beginEmitted = true
		}
		server.feedMonitors(conn, cmdLine)
		result := db.execWithLock(cmdLine)
		results = append(results, result)
	}
	if beginEmitted {
		// close the unit, consumers replay MULTI..EXEC as a whole
		db.addAof(utils.ToCmdLine("EXEC"))
	}
	server.feedMonitors(conn, utils.ToCmdLine("EXEC"))
	return protocol.MakeMultiRawReply(results)
}

// resetTransaction is the single teardown of a transaction cycle. It is
// idempotent and reachable from DISCARD, both EXEC outcomes and client close.
func (server *Server) resetTransaction(conn redis.Connection) {
	conn.SetMultiState(false)
	conn.ClearQueuedCmds()
	conn.SetDirtyCAS(false)
	server.unwatchAll(conn)
}

// GetRelatedKeys analysis related keys
func GetRelatedKeys(cmdLine [][]byte) ([]string, []string) {
	cmdName := strings.ToLower(string(cmdLine[0]))
	cmd, ok := cmdTable[cmdName]
	if !ok {
		return nil, nil
	}
	prepare := cmd.prepare
	if prepare == nil {
		return nil, nil
	}
	return prepare(cmdLine[1:])
}
