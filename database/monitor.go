package database

import (
	"bytes"
	"fmt"
	"time"

	"github.com/CodingCaius/gedis/interface/redis"
	"github.com/CodingCaius/gedis/redis/protocol"
)

// execMonitor turns the connection into a monitor. A monitor receives a copy
// of every command executed by other clients until it disconnects
func execMonitor(server *Server, c redis.Connection) redis.Reply {
	server.monitorsMu.Lock()
	defer server.monitorsMu.Unlock()
	server.monitors[c.ID()] = c
	return protocol.MakeOkReply()
}

// feedMonitors pushes one executed command to every monitor except the source
// connection. Queued commands of a transaction are fed during EXEC, after the
// MULTI marker and before the closing EXEC
func (server *Server) feedMonitors(c redis.Connection, cmdLine [][]byte) {
	server.monitorsMu.Lock()
	defer server.monitorsMu.Unlock()
	if len(server.monitors) == 0 {
		return
	}
	line := monitorLine(c, cmdLine)
	var sourceID uint64
	if c != nil {
		sourceID = c.ID()
	}
	for id, monitor := range server.monitors {
		if id == sourceID {
			continue
		}
		_, _ = monitor.Write(line.ToBytes())
	}
}

func monitorLine(c redis.Connection, cmdLine [][]byte) redis.Reply {
	buf := bytes.Buffer{}
	now := time.Now()
	dbIndex := 0
	addr := ""
	if c != nil {
		dbIndex = c.GetDBIndex()
		addr = c.RemoteAddr()
	}
	buf.WriteString(fmt.Sprintf("%d.%06d [%d %s]", now.Unix(), now.Nanosecond()/1000, dbIndex, addr))
	for _, arg := range cmdLine {
		buf.WriteString(fmt.Sprintf(" %q", string(arg)))
	}
	return protocol.MakeStatusReply(buf.String())
}
