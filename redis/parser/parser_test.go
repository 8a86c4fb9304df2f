package parser

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodingCaius/gedis/interface/redis"
	"github.com/CodingCaius/gedis/lib/utils"
	"github.com/CodingCaius/gedis/redis/protocol"
)

func TestParseStream(t *testing.T) {
	replies := []redis.Reply{
		protocol.MakeIntReply(1),
		protocol.MakeStatusReply("OK"),
		protocol.MakeErrReply("ERR unknown"),
		protocol.MakeBulkReply([]byte("a\r\nb")), // test binary safety
		protocol.MakeNullBulkReply(),
		protocol.MakeMultiBulkReply(utils.ToCmdLine("set", "key", "value")),
		protocol.MakeEmptyMultiBulkReply(),
	}
	reqs := bytes.Buffer{}
	for _, re := range replies {
		reqs.Write(re.ToBytes())
	}
	reqs.Write([]byte("set 123 123\r\n")) // test text protocol
	expected := make([]redis.Reply, len(replies))
	copy(expected, replies)
	expected = append(expected, protocol.MakeMultiBulkReply(utils.ToCmdLine("set", "123", "123")))

	ch := ParseStream(bytes.NewReader(reqs.Bytes()))
	i := 0
	for payload := range ch {
		if payload.Err != nil {
			if payload.Err == io.EOF {
				return
			}
			t.Error(payload.Err)
			return
		}
		if payload.Data == nil {
			t.Error("empty data")
			return
		}
		exp := expected[i]
		i++
		assert.Equal(t, exp.ToBytes(), payload.Data.ToBytes())
	}
}

func TestParseOne(t *testing.T) {
	reply := protocol.MakeMultiBulkReply(utils.ToCmdLine("watch", "k1", "k2"))
	result, err := ParseOne(reply.ToBytes())
	require.NoError(t, err)
	assert.Equal(t, reply.ToBytes(), result.ToBytes())
}

func TestParseBytes(t *testing.T) {
	buf := bytes.Buffer{}
	buf.Write(protocol.MakeMultiBulkReply(utils.ToCmdLine("multi")).ToBytes())
	buf.Write(protocol.MakeMultiBulkReply(utils.ToCmdLine("incr", "n")).ToBytes())
	buf.Write(protocol.MakeMultiBulkReply(utils.ToCmdLine("exec")).ToBytes())

	results, err := ParseBytes(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, results, 3)
	mbr, ok := results[1].(*protocol.MultiBulkReply)
	require.True(t, ok)
	assert.Equal(t, utils.ToCmdLine("incr", "n"), mbr.Args)
}

func TestParseProtocolError(t *testing.T) {
	_, err := ParseOne([]byte("*x\r\n"))
	assert.Error(t, err)
}
