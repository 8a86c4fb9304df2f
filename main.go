package main

import (
	"fmt"
	"os"

	"github.com/CodingCaius/gedis/config"
	"github.com/CodingCaius/gedis/lib/logger"
	"github.com/CodingCaius/gedis/redis/server"
	"github.com/CodingCaius/gedis/tcp"
)

var banner = `
   ______          ___
  / ____/__  ____/ (_)____
 / / __/ _ \/ __  / / ___/
/ /_/ /  __/ /_/ / (__  )
\____/\___/\__,_/_/____/
`

var defaultProperties = &config.ServerProperties{
	Bind:           "0.0.0.0",
	Port:           6399,
	AppendOnly:     false,
	AppendFilename: "",
	MaxClients:     1000,
	RunID:          config.Properties.RunID,
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	return err == nil && !info.IsDir()
}

func main() {
	print(banner)
	logger.Setup(&logger.Settings{
		Path:       "logs",
		Name:       "gedis",
		Ext:        "log",
		TimeFormat: "2006-01-02",
	})
	configFilename := os.Getenv("CONFIG")
	if configFilename == "" {
		if fileExists("redis.conf") {
			config.SetupConfig("redis.conf")
		} else {
			config.Properties = defaultProperties
		}
	} else {
		config.SetupConfig(configFilename)
	}
	err := tcp.ListenAndServeWithSignal(&tcp.Config{
		Address: fmt.Sprintf("%s:%d", config.Properties.Bind, config.Properties.Port),
	}, server.MakeHandler())
	if err != nil {
		logger.Error(err)
	}
}
