package pubsub

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/CodingCaius/gedis/lib/utils"
	"github.com/CodingCaius/gedis/redis/connection"
	"github.com/CodingCaius/gedis/redis/protocol"
)

func TestPublish(t *testing.T) {
	hub := MakeHub()
	channel := utils.RandString(5)
	msg := utils.RandString(5)
	conn := connection.NewFakeConn()
	Subscribe(hub, conn, utils.ToCmdLine(channel))
	conn.Clean() // clean subscribe success reply

	result := Publish(hub, utils.ToCmdLine(channel, msg))
	assert.Equal(t, protocol.MakeIntReply(1).ToBytes(), result.ToBytes())
	expected := protocol.MakeMultiBulkReply(utils.ToCmdLine("message", channel, msg)).ToBytes()
	assert.Equal(t, expected, conn.Bytes())
}

func TestPublishToEmptyChannel(t *testing.T) {
	hub := MakeHub()
	result := Publish(hub, utils.ToCmdLine("nobody", "msg"))
	assert.Equal(t, protocol.MakeIntReply(0).ToBytes(), result.ToBytes())
}

func TestDoubleSubscribeCountsOnce(t *testing.T) {
	hub := MakeHub()
	channel := utils.RandString(5)
	conn := connection.NewFakeConn()
	Subscribe(hub, conn, utils.ToCmdLine(channel))
	Subscribe(hub, conn, utils.ToCmdLine(channel))
	conn.Clean()

	result := Publish(hub, utils.ToCmdLine(channel, "msg"))
	assert.Equal(t, protocol.MakeIntReply(1).ToBytes(), result.ToBytes())
}

func TestUnSubscribe(t *testing.T) {
	hub := MakeHub()
	channel := utils.RandString(5)
	conn := connection.NewFakeConn()
	Subscribe(hub, conn, utils.ToCmdLine(channel))
	UnSubscribe(hub, conn, utils.ToCmdLine(channel))
	conn.Clean()

	result := Publish(hub, utils.ToCmdLine(channel, "msg"))
	assert.Equal(t, protocol.MakeIntReply(0).ToBytes(), result.ToBytes())
	assert.Empty(t, conn.Bytes())
}

func TestUnsubscribeAll(t *testing.T) {
	hub := MakeHub()
	conn := connection.NewFakeConn()
	Subscribe(hub, conn, utils.ToCmdLine("a", "b"))
	UnsubscribeAll(hub, conn)
	assert.Equal(t, 0, conn.SubsCount())

	result := Publish(hub, utils.ToCmdLine("a", "msg"))
	assert.Equal(t, protocol.MakeIntReply(0).ToBytes(), result.ToBytes())
}
