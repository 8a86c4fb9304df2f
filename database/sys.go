package database

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/mem"

	"github.com/CodingCaius/gedis/config"
	"github.com/CodingCaius/gedis/interface/redis"
	"github.com/CodingCaius/gedis/redis/protocol"
)

var startUpTime = time.Now()

// Ping the server
func Ping(c redis.Connection, args [][]byte) redis.Reply {
	if len(args) == 0 {
		return &protocol.PongReply{}
	} else if len(args) == 1 {
		return protocol.MakeStatusReply(string(args[0]))
	}
	return protocol.MakeErrReply("ERR wrong number of arguments for 'ping' command")
}

// Auth validates client's password
func Auth(c redis.Connection, args [][]byte) redis.Reply {
	if len(args) != 1 {
		return protocol.MakeErrReply("ERR wrong number of arguments for 'auth' command")
	}
	if config.Properties.RequirePass == "" {
		return protocol.MakeErrReply("ERR Client sent AUTH, but no password is set")
	}
	passwd := string(args[0])
	c.SetPassword(passwd)
	if config.Properties.RequirePass != passwd {
		return protocol.MakeErrReply("ERR invalid password")
	}
	return &protocol.OkReply{}
}

func isAuthenticated(c redis.Connection) bool {
	if config.Properties.RequirePass == "" {
		return true
	}
	return c.GetPassword() == config.Properties.RequirePass
}

// DbSize returns the number of keys in the selected database
func DbSize(c redis.Connection, server *Server) redis.Reply {
	keys, _ := server.GetDBSize(c.GetDBIndex())
	return protocol.MakeIntReply(int64(keys))
}

// Info returns information and statistics about the server
func Info(server *Server, args [][]byte) redis.Reply {
	if len(args) == 0 {
		infoCommandList := [...]string{"server", "memory", "keyspace"}
		var sb strings.Builder
		for _, section := range infoCommandList {
			sb.WriteString(genGedisInfoString(section, server))
		}
		return protocol.MakeBulkReply([]byte(sb.String()))
	} else if len(args) == 1 {
		section := strings.ToLower(string(args[0]))
		switch section {
		case "server":
			return protocol.MakeBulkReply([]byte(genGedisInfoString("server", server)))
		case "memory":
			return protocol.MakeBulkReply([]byte(genGedisInfoString("memory", server)))
		case "keyspace":
			return protocol.MakeBulkReply([]byte(genGedisInfoString("keyspace", server)))
		default:
			return protocol.MakeErrReply("Invalid section for 'info' command")
		}
	}
	return protocol.MakeArgNumErrReply("info")
}

func genGedisInfoString(section string, server *Server) string {
	switch section {
	case "server":
		startUpTimeFromNow := int64(time.Since(startUpTime).Seconds())
		return fmt.Sprintf("# Server\r\n"+
			"gedis_version:%s\r\n"+
			"go_version:%s\r\n"+
			"process_id:%d\r\n"+
			"run_id:%s\r\n"+
			"tcp_port:%d\r\n"+
			"uptime_in_seconds:%d\r\n"+
			"uptime_in_days:%d\r\n"+
			"config_file:%s\r\n",
			gedisVersion,
			runtime.Version(),
			os.Getpid(),
			config.Properties.RunID,
			config.Properties.Port,
			startUpTimeFromNow,
			startUpTimeFromNow/86400,
			config.Properties.CfPath)
	case "memory":
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		var sysTotal uint64
		if vm, err := mem.VirtualMemory(); err == nil {
			sysTotal = vm.Total
		}
		return fmt.Sprintf("# Memory\r\n"+
			"used_memory:%d\r\n"+
			"used_memory_sys:%d\r\n"+
			"total_system_memory:%d\r\n",
			memStats.Alloc,
			memStats.Sys,
			sysTotal)
	case "keyspace":
		var sb strings.Builder
		sb.WriteString("# Keyspace\r\n")
		for i := 0; i < config.Properties.Databases; i++ {
			keys, expiresKeys := server.GetDBSize(i)
			if keys != 0 {
				ttlSampleAverage := 0
				sb.WriteString(fmt.Sprintf("db%d:keys=%d,expires=%d,avg_ttl=%d\r\n",
					i, keys, expiresKeys, ttlSampleAverage))
			}
		}
		return sb.String()
	}
	return ""
}

func init() {
	registerSpecialCommand("Ping", -1, flagReadOnly)
	registerSpecialCommand("Auth", 2, flagReadOnly)
	registerSpecialCommand("Info", -1, flagReadOnly)
	registerSpecialCommand("DbSize", 1, flagReadOnly)
	registerSpecialCommand("Select", 2, flagReadOnly)
	registerSpecialCommand("FlushDB", -1, flagWrite)
	registerSpecialCommand("FlushAll", -1, flagWrite)
	registerSpecialCommand("Subscribe", -2, flagReadOnly)
	registerSpecialCommand("UnSubscribe", -1, flagReadOnly)
	registerSpecialCommand("Publish", 3, flagReadOnly)
	registerSpecialCommand("Monitor", 1, flagReadOnly)
	registerSpecialCommand("BGRewriteAOF", 1, flagReadOnly)
	registerSpecialCommand("RewriteAOF", 1, flagReadOnly)
	registerSpecialCommand("Multi", 1, flagReadOnly)
	registerSpecialCommand("Exec", 1, flagReadOnly)
	registerSpecialCommand("Discard", 1, flagReadOnly)
	registerSpecialCommand("Watch", -2, flagReadOnly)
	registerSpecialCommand("UnWatch", 1, flagReadOnly)
}
