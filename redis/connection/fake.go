package connection

import "bytes"

// FakeConn implements redis.Connection for test and AOF replay
type FakeConn struct {
	Connection
	buf bytes.Buffer
}

// NewFakeConn creates a new FakeConn
func NewFakeConn() *FakeConn {
	c := &FakeConn{}
	c.id = uint64(connIDGenerator.NextID())
	return c
}

// Write writes data to buffer
func (c *FakeConn) Write(b []byte) (int, error) {
	return c.buf.Write(b)
}

// Clean resets the buffer
func (c *FakeConn) Clean() {
	c.buf.Reset()
}

// Bytes returns written data
func (c *FakeConn) Bytes() []byte {
	return c.buf.Bytes()
}

// RemoteAddr returns a fake address
func (c *FakeConn) RemoteAddr() string {
	return ""
}

// Name returns a fake name
func (c *FakeConn) Name() string {
	return "fake-conn"
}

// Close does nothing, a fake connection holds no resource
func (c *FakeConn) Close() error {
	return nil
}
