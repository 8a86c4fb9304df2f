package database

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodingCaius/gedis/interface/redis"
	"github.com/CodingCaius/gedis/lib/utils"
	"github.com/CodingCaius/gedis/redis/connection"
	"github.com/CodingCaius/gedis/redis/protocol"
)

func TestMultiExecCommits(t *testing.T) {
	server := MakeBasicServer()
	conn := connection.NewFakeConn()

	result := server.Exec(conn, utils.ToCmdLine("multi"))
	assert.Equal(t, protocol.MakeOkReply().ToBytes(), result.ToBytes())
	assert.True(t, conn.InMultiState())

	result = server.Exec(conn, utils.ToCmdLine("set", "k", "v"))
	assert.Equal(t, protocol.MakeQueuedReply().ToBytes(), result.ToBytes())
	result = server.Exec(conn, utils.ToCmdLine("get", "k"))
	assert.Equal(t, protocol.MakeQueuedReply().ToBytes(), result.ToBytes())
	// nothing executed while queueing
	_, exists := server.mustSelectDB(0).GetEntity("k")
	assert.False(t, exists)

	result = server.Exec(conn, utils.ToCmdLine("exec"))
	mbr, ok := result.(*protocol.MultiRawReply)
	require.True(t, ok)
	require.Len(t, mbr.Replies, 2)
	assert.Equal(t, protocol.MakeOkReply().ToBytes(), mbr.Replies[0].ToBytes())
	assert.Equal(t, protocol.MakeBulkReply([]byte("v")).ToBytes(), mbr.Replies[1].ToBytes())
	assert.False(t, conn.InMultiState())
}

func TestExecWithoutMulti(t *testing.T) {
	server := MakeBasicServer()
	conn := connection.NewFakeConn()
	result := server.Exec(conn, utils.ToCmdLine("exec"))
	assert.Equal(t, protocol.MakeErrReply("ERR EXEC without MULTI").ToBytes(), result.ToBytes())
}

func TestDiscardWithoutMulti(t *testing.T) {
	server := MakeBasicServer()
	conn := connection.NewFakeConn()
	result := server.Exec(conn, utils.ToCmdLine("discard"))
	assert.Equal(t, protocol.MakeErrReply("ERR DISCARD without MULTI").ToBytes(), result.ToBytes())
}

func TestNestedMultiRejected(t *testing.T) {
	server := MakeBasicServer()
	conn := connection.NewFakeConn()

	server.Exec(conn, utils.ToCmdLine("multi"))
	server.Exec(conn, utils.ToCmdLine("set", "k", "v"))
	result := server.Exec(conn, utils.ToCmdLine("multi"))
	assert.Equal(t, protocol.MakeErrReply("ERR MULTI calls can not be nested").ToBytes(), result.ToBytes())
	// the open transaction survives the failed MULTI
	assert.True(t, conn.InMultiState())
	assert.Len(t, conn.GetQueuedCmdLine(), 1)

	result = server.Exec(conn, utils.ToCmdLine("exec"))
	mbr, ok := result.(*protocol.MultiRawReply)
	require.True(t, ok)
	assert.Len(t, mbr.Replies, 1)
}

func TestQueueingErrorAbortsExec(t *testing.T) {
	server := MakeBasicServer()
	conn := connection.NewFakeConn()

	server.Exec(conn, utils.ToCmdLine("multi"))
	result := server.Exec(conn, utils.ToCmdLine("whatever", "k"))
	assert.True(t, protocol.IsErrorReply(result))
	server.Exec(conn, utils.ToCmdLine("set", "k", "v"))

	result = server.Exec(conn, utils.ToCmdLine("exec"))
	assert.Equal(t,
		protocol.MakeErrReply("EXECABORT Transaction discarded because of previous errors.").ToBytes(),
		result.ToBytes())
	// the valid queued command did not run
	_, exists := server.mustSelectDB(0).GetEntity("k")
	assert.False(t, exists)
	assert.False(t, conn.InMultiState())
}

func TestArityErrorPoisonsQueue(t *testing.T) {
	server := MakeBasicServer()
	conn := connection.NewFakeConn()

	server.Exec(conn, utils.ToCmdLine("multi"))
	result := server.Exec(conn, utils.ToCmdLine("get"))
	assert.True(t, protocol.IsErrorReply(result))
	result = server.Exec(conn, utils.ToCmdLine("exec"))
	assert.Equal(t,
		protocol.MakeErrReply("EXECABORT Transaction discarded because of previous errors.").ToBytes(),
		result.ToBytes())
}

func TestSpecialCommandCannotBeQueued(t *testing.T) {
	server := MakeBasicServer()
	conn := connection.NewFakeConn()

	server.Exec(conn, utils.ToCmdLine("multi"))
	result := server.Exec(conn, utils.ToCmdLine("flushdb"))
	assert.True(t, protocol.IsErrorReply(result))
	result = server.Exec(conn, utils.ToCmdLine("exec"))
	assert.True(t, protocol.IsErrorReply(result))
}

func TestWatchNoTouchCommits(t *testing.T) {
	server := MakeBasicServer()
	conn := connection.NewFakeConn()
	server.Exec(conn, utils.ToCmdLine("set", "k", "old"))

	result := server.Exec(conn, utils.ToCmdLine("watch", "k"))
	assert.Equal(t, protocol.MakeOkReply().ToBytes(), result.ToBytes())
	server.Exec(conn, utils.ToCmdLine("multi"))
	server.Exec(conn, utils.ToCmdLine("set", "k", "new"))
	result = server.Exec(conn, utils.ToCmdLine("exec"))
	_, ok := result.(*protocol.MultiRawReply)
	assert.True(t, ok)

	entity, _ := server.mustSelectDB(0).GetEntity("k")
	assert.Equal(t, []byte("new"), entity.Data)
}

func TestWatchTouchCancelsExec(t *testing.T) {
	server := MakeBasicServer()
	watcher := connection.NewFakeConn()
	writer := connection.NewFakeConn()
	server.Exec(writer, utils.ToCmdLine("set", "x", "1"))

	server.Exec(watcher, utils.ToCmdLine("watch", "x"))
	// another connection modifies the watched key before EXEC
	server.Exec(writer, utils.ToCmdLine("set", "x", "2"))

	server.Exec(watcher, utils.ToCmdLine("multi"))
	server.Exec(watcher, utils.ToCmdLine("set", "x", "3"))
	result := server.Exec(watcher, utils.ToCmdLine("exec"))
	assert.Equal(t, protocol.MakeNullMultiBulkReply().ToBytes(), result.ToBytes())

	// the cancelled batch did not run
	entity, _ := server.mustSelectDB(0).GetEntity("x")
	assert.Equal(t, []byte("2"), entity.Data)
}

func TestWatchTouchByDelete(t *testing.T) {
	server := MakeBasicServer()
	watcher := connection.NewFakeConn()
	writer := connection.NewFakeConn()
	server.Exec(writer, utils.ToCmdLine("set", "x", "1"))

	server.Exec(watcher, utils.ToCmdLine("watch", "x"))
	server.Exec(writer, utils.ToCmdLine("del", "x"))

	server.Exec(watcher, utils.ToCmdLine("multi"))
	server.Exec(watcher, utils.ToCmdLine("set", "x", "3"))
	result := server.Exec(watcher, utils.ToCmdLine("exec"))
	assert.Equal(t, protocol.MakeNullMultiBulkReply().ToBytes(), result.ToBytes())
}

// racingConn fires a callback the first time its watch list is read,
// interleaving another connection's command into the commit path of EXEC
type racingConn struct {
	redis.Connection
	once        sync.Once
	onWatchRead func()
}

func (c *racingConn) GetWatchKeys() []redis.WatchKey {
	keys := c.Connection.GetWatchKeys()
	c.once.Do(c.onWatchRead)
	return keys
}

func TestTouchRightBeforeCommitCancelsExec(t *testing.T) {
	server := MakeBasicServer()
	writer := connection.NewFakeConn()
	server.Exec(writer, utils.ToCmdLine("set", "x", "1"))

	// the rival write lands after EXEC snapshots the queue but before the
	// batch locks are taken
	watcher := &racingConn{Connection: connection.NewFakeConn()}
	watcher.onWatchRead = func() {
		server.Exec(writer, utils.ToCmdLine("set", "x", "2"))
	}
	server.Exec(watcher, utils.ToCmdLine("watch", "x"))
	server.Exec(watcher, utils.ToCmdLine("multi"))
	server.Exec(watcher, utils.ToCmdLine("set", "x", "3"))
	result := server.Exec(watcher, utils.ToCmdLine("exec"))
	assert.Equal(t, protocol.MakeNullMultiBulkReply().ToBytes(), result.ToBytes())

	entity, _ := server.mustSelectDB(0).GetEntity("x")
	assert.Equal(t, []byte("2"), entity.Data)
}

func TestUnwatchLeavesParallelWatcherDirty(t *testing.T) {
	server := MakeBasicServer()
	connA := connection.NewFakeConn()
	connB := connection.NewFakeConn()
	writer := connection.NewFakeConn()
	server.Exec(writer, utils.ToCmdLine("set", "k", "1"))

	server.Exec(connA, utils.ToCmdLine("watch", "k"))
	server.Exec(connB, utils.ToCmdLine("watch", "k"))
	server.Exec(writer, utils.ToCmdLine("set", "k", "2"))

	server.Exec(connA, utils.ToCmdLine("unwatch"))
	assert.False(t, connA.IsDirtyCAS())
	assert.True(t, connB.IsDirtyCAS())
	// the registry still carries connB's entry
	assert.True(t, server.mustSelectDB(0).hasWatchers("k"))

	server.Exec(connB, utils.ToCmdLine("multi"))
	server.Exec(connB, utils.ToCmdLine("set", "k", "3"))
	result := server.Exec(connB, utils.ToCmdLine("exec"))
	assert.Equal(t, protocol.MakeNullMultiBulkReply().ToBytes(), result.ToBytes())
	assert.False(t, server.mustSelectDB(0).hasWatchers("k"))
}

func TestWatchIndependentPerConnection(t *testing.T) {
	server := MakeBasicServer()
	connA := connection.NewFakeConn()
	connB := connection.NewFakeConn()

	server.Exec(connA, utils.ToCmdLine("watch", "x"))
	server.Exec(connB, utils.ToCmdLine("watch", "y"))
	// touching x dirties only connA
	server.Exec(connB, utils.ToCmdLine("set", "x", "1"))

	server.Exec(connA, utils.ToCmdLine("multi"))
	server.Exec(connA, utils.ToCmdLine("get", "x"))
	result := server.Exec(connA, utils.ToCmdLine("exec"))
	assert.Equal(t, protocol.MakeNullMultiBulkReply().ToBytes(), result.ToBytes())

	server.Exec(connB, utils.ToCmdLine("multi"))
	server.Exec(connB, utils.ToCmdLine("get", "y"))
	result = server.Exec(connB, utils.ToCmdLine("exec"))
	_, ok := result.(*protocol.MultiRawReply)
	assert.True(t, ok)
}

func TestWatchInsideMultiRejected(t *testing.T) {
	server := MakeBasicServer()
	conn := connection.NewFakeConn()

	server.Exec(conn, utils.ToCmdLine("multi"))
	result := server.Exec(conn, utils.ToCmdLine("watch", "k"))
	assert.Equal(t, protocol.MakeErrReply("ERR WATCH inside MULTI is not allowed").ToBytes(), result.ToBytes())
}

func TestUnwatchForgivesConflict(t *testing.T) {
	server := MakeBasicServer()
	watcher := connection.NewFakeConn()
	writer := connection.NewFakeConn()

	server.Exec(watcher, utils.ToCmdLine("watch", "x"))
	server.Exec(writer, utils.ToCmdLine("set", "x", "1"))
	assert.True(t, watcher.IsDirtyCAS())

	result := server.Exec(watcher, utils.ToCmdLine("unwatch"))
	assert.Equal(t, protocol.MakeOkReply().ToBytes(), result.ToBytes())
	assert.False(t, watcher.IsDirtyCAS())
	assert.False(t, server.mustSelectDB(0).hasWatchers("x"))

	server.Exec(watcher, utils.ToCmdLine("multi"))
	server.Exec(watcher, utils.ToCmdLine("set", "x", "2"))
	result = server.Exec(watcher, utils.ToCmdLine("exec"))
	_, ok := result.(*protocol.MultiRawReply)
	assert.True(t, ok)
}

func TestDiscardClearsEverything(t *testing.T) {
	server := MakeBasicServer()
	watcher := connection.NewFakeConn()
	writer := connection.NewFakeConn()

	server.Exec(watcher, utils.ToCmdLine("watch", "x"))
	server.Exec(writer, utils.ToCmdLine("set", "x", "1"))

	server.Exec(watcher, utils.ToCmdLine("multi"))
	server.Exec(watcher, utils.ToCmdLine("set", "x", "2"))
	result := server.Exec(watcher, utils.ToCmdLine("discard"))
	assert.Equal(t, protocol.MakeOkReply().ToBytes(), result.ToBytes())
	assert.False(t, watcher.InMultiState())
	assert.Empty(t, watcher.GetQueuedCmdLine())
	assert.False(t, watcher.IsDirtyCAS())
	assert.False(t, server.mustSelectDB(0).hasWatchers("x"))

	// a fresh transaction is not haunted by the discarded conflict
	server.Exec(watcher, utils.ToCmdLine("multi"))
	server.Exec(watcher, utils.ToCmdLine("set", "x", "3"))
	result = server.Exec(watcher, utils.ToCmdLine("exec"))
	_, ok := result.(*protocol.MultiRawReply)
	assert.True(t, ok)
}

func TestWatchIdempotent(t *testing.T) {
	server := MakeBasicServer()
	conn := connection.NewFakeConn()

	server.Exec(conn, utils.ToCmdLine("watch", "k", "k"))
	server.Exec(conn, utils.ToCmdLine("watch", "k"))
	assert.Len(t, conn.GetWatchKeys(), 1)

	server.Exec(conn, utils.ToCmdLine("unwatch"))
	assert.Empty(t, conn.GetWatchKeys())
	assert.False(t, server.mustSelectDB(0).hasWatchers("k"))
}

func TestExecPropagatesAsOneUnit(t *testing.T) {
	server := MakeBasicServer()
	conn := connection.NewFakeConn()
	var propagated []string
	db := server.mustSelectDB(0)
	db.addAof = func(line CmdLine) {
		propagated = append(propagated, string(line[0]))
	}

	server.Exec(conn, utils.ToCmdLine("multi"))
	server.Exec(conn, utils.ToCmdLine("incr", "n"))
	server.Exec(conn, utils.ToCmdLine("incr", "n"))
	result := server.Exec(conn, utils.ToCmdLine("exec"))

	mbr, ok := result.(*protocol.MultiRawReply)
	require.True(t, ok)
	require.Len(t, mbr.Replies, 2)
	assert.Equal(t, protocol.MakeIntReply(1).ToBytes(), mbr.Replies[0].ToBytes())
	assert.Equal(t, protocol.MakeIntReply(2).ToBytes(), mbr.Replies[1].ToBytes())

	assert.Equal(t, []string{"MULTI", "incr", "incr", "EXEC"}, propagated)
}

func TestReadOnlyExecPropagatesNothing(t *testing.T) {
	server := MakeBasicServer()
	conn := connection.NewFakeConn()
	var propagated []string
	db := server.mustSelectDB(0)
	db.addAof = func(line CmdLine) {
		propagated = append(propagated, string(line[0]))
	}

	server.Exec(conn, utils.ToCmdLine("multi"))
	server.Exec(conn, utils.ToCmdLine("get", "k"))
	server.Exec(conn, utils.ToCmdLine("exists", "k"))
	result := server.Exec(conn, utils.ToCmdLine("exec"))
	_, ok := result.(*protocol.MultiRawReply)
	assert.True(t, ok)
	assert.Empty(t, propagated)
}

func TestCancelledExecPropagatesNothing(t *testing.T) {
	server := MakeBasicServer()
	watcher := connection.NewFakeConn()
	writer := connection.NewFakeConn()
	server.Exec(watcher, utils.ToCmdLine("watch", "x"))
	server.Exec(writer, utils.ToCmdLine("set", "x", "1"))

	var propagated []string
	db := server.mustSelectDB(0)
	db.addAof = func(line CmdLine) {
		propagated = append(propagated, string(line[0]))
	}
	server.Exec(watcher, utils.ToCmdLine("multi"))
	server.Exec(watcher, utils.ToCmdLine("set", "x", "2"))
	server.Exec(watcher, utils.ToCmdLine("exec"))
	assert.Empty(t, propagated)
}

func TestOwnWritesDoNotCancelCommit(t *testing.T) {
	server := MakeBasicServer()
	conn := connection.NewFakeConn()

	server.Exec(conn, utils.ToCmdLine("watch", "x"))
	server.Exec(conn, utils.ToCmdLine("multi"))
	server.Exec(conn, utils.ToCmdLine("set", "x", "1"))
	server.Exec(conn, utils.ToCmdLine("incr", "y"))
	result := server.Exec(conn, utils.ToCmdLine("exec"))
	mbr, ok := result.(*protocol.MultiRawReply)
	require.True(t, ok)
	assert.Len(t, mbr.Replies, 2)
}

func TestRuntimeErrorDoesNotAbortBatch(t *testing.T) {
	server := MakeBasicServer()
	conn := connection.NewFakeConn()
	server.Exec(conn, utils.ToCmdLine("set", "s", "not-a-number"))

	server.Exec(conn, utils.ToCmdLine("multi"))
	server.Exec(conn, utils.ToCmdLine("incr", "s"))
	server.Exec(conn, utils.ToCmdLine("set", "k", "v"))
	result := server.Exec(conn, utils.ToCmdLine("exec"))
	mbr, ok := result.(*protocol.MultiRawReply)
	require.True(t, ok)
	require.Len(t, mbr.Replies, 2)
	assert.True(t, protocol.IsErrorReply(mbr.Replies[0]))
	// the command after the failing one still ran
	entity, exists := server.mustSelectDB(0).GetEntity("k")
	require.True(t, exists)
	assert.Equal(t, []byte("v"), entity.Data)
}

func TestFlushTouchesWatchersOfLiveKeys(t *testing.T) {
	server := MakeBasicServer()
	watcher := connection.NewFakeConn()
	writer := connection.NewFakeConn()
	server.Exec(writer, utils.ToCmdLine("set", "k", "v"))

	server.Exec(watcher, utils.ToCmdLine("watch", "k"))
	server.Exec(writer, utils.ToCmdLine("flushdb"))

	server.Exec(watcher, utils.ToCmdLine("multi"))
	server.Exec(watcher, utils.ToCmdLine("set", "k", "v2"))
	result := server.Exec(watcher, utils.ToCmdLine("exec"))
	assert.Equal(t, protocol.MakeNullMultiBulkReply().ToBytes(), result.ToBytes())
}

func TestFlushIgnoresWatchersOfAbsentKeys(t *testing.T) {
	server := MakeBasicServer()
	watcher := connection.NewFakeConn()
	writer := connection.NewFakeConn()

	// the watched key does not exist at flush time
	server.Exec(watcher, utils.ToCmdLine("watch", "nope"))
	server.Exec(writer, utils.ToCmdLine("flushdb"))

	server.Exec(watcher, utils.ToCmdLine("multi"))
	server.Exec(watcher, utils.ToCmdLine("set", "nope", "v"))
	result := server.Exec(watcher, utils.ToCmdLine("exec"))
	_, ok := result.(*protocol.MultiRawReply)
	assert.True(t, ok)
}

func TestFlushAllTouchesEveryDatabase(t *testing.T) {
	server := MakeBasicServer()
	watcher := connection.NewFakeConn()
	writer := connection.NewFakeConn()
	watcher.SelectDB(1)
	server.Exec(watcher, utils.ToCmdLine("set", "k", "v"))
	server.Exec(watcher, utils.ToCmdLine("watch", "k"))

	server.Exec(writer, utils.ToCmdLine("flushall"))

	server.Exec(watcher, utils.ToCmdLine("multi"))
	server.Exec(watcher, utils.ToCmdLine("set", "k", "v2"))
	result := server.Exec(watcher, utils.ToCmdLine("exec"))
	assert.Equal(t, protocol.MakeNullMultiBulkReply().ToBytes(), result.ToBytes())
}

func TestClientCloseTearsDownTransaction(t *testing.T) {
	server := MakeBasicServer()
	conn := connection.NewFakeConn()

	server.Exec(conn, utils.ToCmdLine("watch", "k"))
	server.Exec(conn, utils.ToCmdLine("multi"))
	server.Exec(conn, utils.ToCmdLine("set", "k", "v"))

	server.AfterClientClose(conn)
	assert.False(t, conn.InMultiState())
	assert.Empty(t, conn.GetQueuedCmdLine())
	assert.Empty(t, conn.GetWatchKeys())
	assert.False(t, server.mustSelectDB(0).hasWatchers("k"))
}

func TestExecReleasesWatchesEvenOnAbort(t *testing.T) {
	server := MakeBasicServer()
	watcher := connection.NewFakeConn()
	writer := connection.NewFakeConn()

	server.Exec(watcher, utils.ToCmdLine("watch", "x"))
	server.Exec(writer, utils.ToCmdLine("set", "x", "1"))
	server.Exec(watcher, utils.ToCmdLine("multi"))
	server.Exec(watcher, utils.ToCmdLine("get", "x"))
	server.Exec(watcher, utils.ToCmdLine("exec"))

	assert.Empty(t, watcher.GetWatchKeys())
	assert.False(t, server.mustSelectDB(0).hasWatchers("x"))
	assert.False(t, watcher.IsDirtyCAS())
}
