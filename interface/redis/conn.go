package redis

// WatchKey identifies a watched (database, key) pair.
// A connection holds at most one WatchKey per pair, watching is idempotent.
type WatchKey struct {
	DB  int
	Key string
}

// Connection represents a connection with a redis client
type Connection interface {
	Write([]byte) (int, error)
	Close() error
	RemoteAddr() string
	Name() string

	// ID returns a stable handle for this connection, registries reference
	// connections by ID instead of by pointer
	ID() uint64

	SetPassword(string)
	GetPassword() string

	// client should keep its subscribing channels
	Subscribe(channel string)
	UnSubscribe(channel string)
	SubsCount() int
	GetChannels() []string

	// used for `Multi` command
	InMultiState() bool
	SetMultiState(bool)
	GetQueuedCmdLine() [][][]byte
	EnqueueCmd([][]byte)
	ClearQueuedCmds()
	AddTxError(err error)
	GetTxErrors() []error

	// used for `Watch` command
	AddWatchKey(wk WatchKey) bool
	GetWatchKeys() []WatchKey
	ClearWatchKeys()
	SetDirtyCAS(dirty bool)
	IsDirtyCAS() bool

	GetDBIndex() int
	SelectDB(int)
}
