package connection

import (
	"net"
	"sync"
	"time"

	"github.com/CodingCaius/gedis/interface/redis"
	"github.com/CodingCaius/gedis/lib/idgenerator"
	"github.com/CodingCaius/gedis/lib/logger"
	"github.com/CodingCaius/gedis/lib/sync/wait"
)

var connIDGenerator = idgenerator.MakeGenerator("conn")

// Connection represents a connection with a redis client
type Connection struct {
	conn net.Conn

	// id is a stable handle for this connection. Watch registries reference
	// connections by id so that a closed connection can never leave a
	// dangling registry entry behind a recycled pointer.
	id uint64

	// waiting until protocol finished sending data, used for graceful shutdown
	sendingData wait.Wait

	// lock while server sending response
	mu sync.Mutex

	// subscribing channels
	subs map[string]bool

	// password may be changed by CONFIG command during runtime, so store the password
	password string

	// queued commands, sticky error flags and watched keys of an open
	// transaction, see database/transaction.go
	multiState bool
	queue      [][][]byte
	txErrors   []error
	watching   []redis.WatchKey
	dirtyCAS   bool

	// selected db
	selectedDB int
}

var connPool = sync.Pool{
	New: func() interface{} {
		return &Connection{}
	},
}

// NewConn creates Connection instance
func NewConn(conn net.Conn) *Connection {
	c, ok := connPool.Get().(*Connection)
	if !ok {
		logger.Error("connection pool make wrong type")
		c = &Connection{}
	}
	c.conn = conn
	c.id = uint64(connIDGenerator.NextID())
	return c
}

// RemoteAddr returns the remote network address
func (c *Connection) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Name returns the remote network address
func (c *Connection) Name() string {
	if c.conn != nil {
		return c.conn.RemoteAddr().String()
	}
	return ""
}

// ID returns the stable handle of this connection
func (c *Connection) ID() uint64 {
	return c.id
}

// Close disconnects with the client
func (c *Connection) Close() error {
	c.sendingData.WaitWithTimeout(10 * time.Second)
	_ = c.conn.Close()
	c.subs = nil
	c.password = ""
	c.multiState = false
	c.queue = nil
	c.txErrors = nil
	c.watching = nil
	c.dirtyCAS = false
	c.selectedDB = 0
	c.id = 0
	connPool.Put(c)
	return nil
}

// Write sends response to client over tcp connection
func (c *Connection) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	c.sendingData.Add(1)
	defer func() {
		c.sendingData.Done()
	}()
	return c.conn.Write(b)
}

// Subscribe add current connection into subscribers of the given channel
func (c *Connection) Subscribe(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.subs == nil {
		c.subs = make(map[string]bool)
	}
	c.subs[channel] = true
}

// UnSubscribe removes current connection into subscribers of the given channel
func (c *Connection) UnSubscribe(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.subs) == 0 {
		return
	}
	delete(c.subs, channel)
}

// SubsCount returns the number of subscribing channels
func (c *Connection) SubsCount() int {
	return len(c.subs)
}

// GetChannels returns all subscribing channels
func (c *Connection) GetChannels() []string {
	if c.subs == nil {
		return make([]string, 0)
	}
	channels := make([]string, len(c.subs))
	i := 0
	for channel := range c.subs {
		channels[i] = channel
		i++
	}
	return channels
}

// SetPassword stores password for authentication
func (c *Connection) SetPassword(password string) {
	c.password = password
}

// GetPassword get password for authentication
func (c *Connection) GetPassword() string {
	return c.password
}

// InMultiState tells is connection in an uncommitted transaction
func (c *Connection) InMultiState() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.multiState
}

// SetMultiState sets transaction flag. It only toggles the flag, the queue
// and the other transaction state are reset by the engine's single teardown
func (c *Connection) SetMultiState(state bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.multiState = state
}

// GetQueuedCmdLine returns queued commands of current transaction
func (c *Connection) GetQueuedCmdLine() [][][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	queue := make([][][]byte, len(c.queue))
	copy(queue, c.queue)
	return queue
}

// EnqueueCmd enqueues command of current transaction. The command line is
// deeply copied so the queued command stays valid after the request buffer
// has been reused
func (c *Connection) EnqueueCmd(cmdLine [][]byte) {
	line := make([][]byte, len(cmdLine))
	for i, arg := range cmdLine {
		line[i] = make([]byte, len(arg))
		copy(line[i], arg)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, line)
}

// AddTxError stores a command error happened during queueing
func (c *Connection) AddTxError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txErrors = append(c.txErrors, err)
}

// GetTxErrors returns errors happened during queueing
func (c *Connection) GetTxErrors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txErrors
}

// ClearQueuedCmds clears queued commands and queueing errors of current transaction
func (c *Connection) ClearQueuedCmds() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = nil
	c.txErrors = nil
}

// AddWatchKey records a watched key, returns false if the pair is already watched
func (c *Connection) AddWatchKey(wk redis.WatchKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range c.watching {
		if w == wk {
			return false
		}
	}
	c.watching = append(c.watching, wk)
	return true
}

// GetWatchKeys returns a copy of the watched keys in watch order
func (c *Connection) GetWatchKeys() []redis.WatchKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	watching := make([]redis.WatchKey, len(c.watching))
	copy(watching, c.watching)
	return watching
}

// ClearWatchKeys drops all watched keys, the registry side is removed by the engine
func (c *Connection) ClearWatchKeys() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watching = nil
}

// SetDirtyCAS marks that a watched key has been modified.
// The flag may be raised by other connections' goroutines
func (c *Connection) SetDirtyCAS(dirty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirtyCAS = dirty
}

// IsDirtyCAS tells whether a watched key has been modified since it was watched
func (c *Connection) IsDirtyCAS() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirtyCAS
}

// GetDBIndex returns selected db
func (c *Connection) GetDBIndex() int {
	return c.selectedDB
}

// SelectDB selects a database
func (c *Connection) SelectDB(dbNum int) {
	c.selectedDB = dbNum
}
