package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// Settings stores config for logger
type Settings struct {
	Path       string `yaml:"path"`
	Name       string `yaml:"name"`
	Ext        string `yaml:"ext"`
	TimeFormat string `yaml:"time-format"`
}

type logLevel int

const (
	debugLevel logLevel = iota
	infoLevel
	warningLevel
	errorLevel
	fatalLevel
)

const (
	flags             = log.LstdFlags
	defaultCallerSkip = 2
)

var levelFlags = []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

var (
	logger  = log.New(os.Stdout, "", flags)
	mu      sync.Mutex
	logFile *os.File
)

// Setup initializes logger to write both stdout and a rolling file
func Setup(settings *Settings) {
	fileName := fmt.Sprintf("%s-%s.%s",
		settings.Name,
		time.Now().Format(settings.TimeFormat),
		settings.Ext)
	f, err := mustOpen(fileName, settings.Path)
	if err != nil {
		logger.Fatalf("logging.Setup err: %s", err)
	}

	mu.Lock()
	defer mu.Unlock()
	logFile = f
	logger = log.New(io.MultiWriter(os.Stdout, f), "", flags)
}

func mustOpen(fileName, dir string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("permission denied dir: %s", dir)
	}
	f, err := os.OpenFile(filepath.Join(dir, fileName), os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("fail to open file: %v", err)
	}
	return f, nil
}

func setPrefix(level logLevel) {
	_, file, line, ok := runtime.Caller(defaultCallerSkip)
	var prefix string
	if ok {
		prefix = fmt.Sprintf("[%s][%s:%d] ", levelFlags[level], filepath.Base(file), line)
	} else {
		prefix = fmt.Sprintf("[%s] ", levelFlags[level])
	}
	logger.SetPrefix(prefix)
}

// Debug prints debug log
func Debug(v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	setPrefix(debugLevel)
	logger.Println(v...)
}

// Info prints normal log
func Info(v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	setPrefix(infoLevel)
	logger.Println(v...)
}

// Infof prints normal log with format
func Infof(format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	setPrefix(infoLevel)
	logger.Println(fmt.Sprintf(format, v...))
}

// Warn prints warning log
func Warn(v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	setPrefix(warningLevel)
	logger.Println(v...)
}

// Error prints error log
func Error(v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	setPrefix(errorLevel)
	logger.Println(v...)
}

// Errorf prints error log with format
func Errorf(format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	setPrefix(errorLevel)
	logger.Println(fmt.Sprintf(format, v...))
}

// Fatal prints error log then stop the program
func Fatal(v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	setPrefix(fatalLevel)
	logger.Fatalln(v...)
}
