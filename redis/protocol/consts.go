package protocol

// PongReply is +PONG
type PongReply struct{}

var pongBytes = []byte("+PONG\r\n")

// ToBytes marshal redis.Reply
func (r *PongReply) ToBytes() []byte {
	return pongBytes
}

// MakePongReply returns a +PONG reply
func MakePongReply() *PongReply {
	return &PongReply{}
}

// OkReply is +OK
type OkReply struct{}

var okBytes = []byte("+OK\r\n")

// ToBytes marshal redis.Reply
func (r *OkReply) ToBytes() []byte {
	return okBytes
}

var theOkReply = new(OkReply)

// MakeOkReply returns a ok protocol
func MakeOkReply() *OkReply {
	return theOkReply
}

// QueuedReply is +QUEUED, replied after a command is appended to a transaction queue
type QueuedReply struct{}

var queuedBytes = []byte("+QUEUED\r\n")

// ToBytes marshal redis.Reply
func (r *QueuedReply) ToBytes() []byte {
	return queuedBytes
}

var theQueuedReply = new(QueuedReply)

// MakeQueuedReply returns a +QUEUED protocol
func MakeQueuedReply() *QueuedReply {
	return theQueuedReply
}

var nullBulkBytes = []byte("$-1\r\n")

// NullBulkReply is empty string
type NullBulkReply struct{}

// ToBytes marshal redis.Reply
func (r *NullBulkReply) ToBytes() []byte {
	return nullBulkBytes
}

// MakeNullBulkReply creates a new NullBulkReply
func MakeNullBulkReply() *NullBulkReply {
	return &NullBulkReply{}
}

var emptyMultiBulkBytes = []byte("*0\r\n")

// EmptyMultiBulkReply is an empty list
type EmptyMultiBulkReply struct{}

// ToBytes marshal redis.Reply
func (r *EmptyMultiBulkReply) ToBytes() []byte {
	return emptyMultiBulkBytes
}

// MakeEmptyMultiBulkReply creates EmptyMultiBulkReply
func MakeEmptyMultiBulkReply() *EmptyMultiBulkReply {
	return &EmptyMultiBulkReply{}
}

var nullMultiBulkBytes = []byte("*-1\r\n")

// NullMultiBulkReply is the null array, replied by EXEC when the transaction
// has been cancelled because of a touched watched key. It is not an error and
// is distinguishable from the empty array replied by an empty committed batch.
type NullMultiBulkReply struct{}

// ToBytes marshal redis.Reply
func (r *NullMultiBulkReply) ToBytes() []byte {
	return nullMultiBulkBytes
}

// MakeNullMultiBulkReply creates NullMultiBulkReply
func MakeNullMultiBulkReply() *NullMultiBulkReply {
	return &NullMultiBulkReply{}
}

// NoReply respond nothing, for commands like subscribe
type NoReply struct{}

var noBytes = []byte("")

// ToBytes marshal redis.Reply
func (r *NoReply) ToBytes() []byte {
	return noBytes
}
