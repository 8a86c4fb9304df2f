package config

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/CodingCaius/gedis/lib/logger"
	"github.com/openzipkin/zipkin-go/idgenerator"
	"gopkg.in/yaml.v2"
)

var (
	// ClusterMode is reserved for a future server-side cluster
	ClusterMode = "cluster"
	// StandaloneMode is a single node server
	StandaloneMode = "standalone"
)

// ServerProperties defines global config properties
type ServerProperties struct {
	// RunID always different at every exec
	RunID             string `cfg:"runid"`
	Bind              string `cfg:"bind"`
	Port              int    `cfg:"port"`
	Dir               string `cfg:"dir"`
	AppendOnly        bool   `cfg:"appendonly"`
	AppendFilename    string `cfg:"appendfilename"`
	AppendFsync       string `cfg:"appendfsync"`
	AofUseRdbPreamble bool   `cfg:"aof-use-rdb-preamble"`
	MaxClients        int    `cfg:"maxclients"`
	RequirePass       string `cfg:"requirepass"`
	Databases         int    `cfg:"databases"`
	RDBFilename       string `cfg:"dbfilename"`

	// config file path
	CfPath string `cfg:"cf,omitempty"`
}

// ServerInfo stores the bootstrap time of the server
type ServerInfo struct {
	StartUpTime time.Time
}

// AnnounceAddress returns the address clients should connect to
func (p *ServerProperties) AnnounceAddress() string {
	return p.Bind + ":" + strconv.Itoa(p.Port)
}

// Properties holds global config properties
var Properties *ServerProperties

// EachTimeServerInfo holds the run info of the current process
var EachTimeServerInfo *ServerInfo

func init() {
	// we do not want to reset the server start up time
	EachTimeServerInfo = &ServerInfo{
		StartUpTime: time.Now(),
	}

	// default config
	Properties = &ServerProperties{
		Bind:       "127.0.0.1",
		Port:       6379,
		AppendOnly: false,
		RunID:      genRunID(),
	}
}

// genRunID generates a random 128-bit hex id for this run
func genRunID() string {
	return idgenerator.NewRandom128().TraceID().String()
}

func fillProperties(rawMap map[string]string) *ServerProperties {
	config := &ServerProperties{}

	t := reflect.TypeOf(config)
	v := reflect.ValueOf(config)
	n := t.Elem().NumField()
	for i := 0; i < n; i++ {
		field := t.Elem().Field(i)
		fieldVal := v.Elem().Field(i)
		key, ok := field.Tag.Lookup("cfg")
		if !ok || strings.TrimLeft(key, " ") == "" {
			key = field.Name
		}
		value, ok := rawMap[strings.ToLower(key)]
		if ok {
			// fill config
			switch field.Type.Kind() {
			case reflect.String:
				fieldVal.SetString(value)
			case reflect.Int:
				intValue, err := strconv.ParseInt(value, 10, 64)
				if err == nil {
					fieldVal.SetInt(intValue)
				}
			case reflect.Bool:
				boolValue := "yes" == value
				fieldVal.SetBool(boolValue)
			case reflect.Slice:
				if field.Type.Elem().Kind() == reflect.String {
					slice := strings.Split(value, ",")
					fieldVal.Set(reflect.ValueOf(slice))
				}
			}
		}
	}
	return config
}

// parse reads a redis.conf style config file
func parse(src io.Reader) *ServerProperties {
	rawMap := make(map[string]string)
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) > 0 && strings.TrimLeft(line, " ")[0] == '#' {
			continue
		}
		pivot := strings.IndexAny(line, " ")
		if pivot > 0 && pivot < len(line)-1 { // separator found
			key := line[0:pivot]
			value := strings.Trim(line[pivot+1:], " ")
			rawMap[strings.ToLower(key)] = value
		}
	}
	if err := scanner.Err(); err != nil {
		logger.Fatal(err)
	}
	return fillProperties(rawMap)
}

// parseYaml reads a yaml config file
func parseYaml(src io.Reader) *ServerProperties {
	data, err := io.ReadAll(src)
	if err != nil {
		logger.Fatal(err)
	}
	yamlMap := make(map[string]interface{})
	if err = yaml.Unmarshal(data, &yamlMap); err != nil {
		logger.Fatal(err)
	}
	rawMap := make(map[string]string)
	for key, value := range yamlMap {
		switch v := value.(type) {
		case string:
			rawMap[strings.ToLower(key)] = v
		case bool:
			if v {
				rawMap[strings.ToLower(key)] = "yes"
			} else {
				rawMap[strings.ToLower(key)] = "no"
			}
		case int:
			rawMap[strings.ToLower(key)] = strconv.Itoa(v)
		}
	}
	return fillProperties(rawMap)
}

// SetupConfig read config file and store properties into Properties
func SetupConfig(configFilename string) {
	file, err := os.Open(configFilename)
	if err != nil {
		panic(err)
	}
	defer file.Close()
	ext := strings.ToLower(filepath.Ext(configFilename))
	if ext == ".yaml" || ext == ".yml" {
		Properties = parseYaml(file)
	} else {
		Properties = parse(file)
	}
	Properties.RunID = genRunID()
	configFilePath, err := filepath.Abs(configFilename)
	if err != nil {
		return
	}
	Properties.CfPath = configFilePath
	if Properties.Dir == "" {
		Properties.Dir = "."
	}
}

// GetTmpDir returns the temp directory for aof rewrite
func GetTmpDir() string {
	return Properties.Dir + "/tmp"
}
