package obs

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger

	levelMu  sync.RWMutex
	minLevel = levelInfo
)

const (
	levelDebug = iota
	levelInfo
	levelWarn
	levelError
)

var levelNames = map[int]string{
	levelDebug: "debug",
	levelInfo:  "info",
	levelWarn:  "warn",
	levelError: "error",
}

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// SetLevel задаёт минимальный уровень логирования (debug, info, warn, error).
func SetLevel(level string) {
	lvl := levelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = levelDebug
	case "warn", "warning":
		lvl = levelWarn
	case "error":
		lvl = levelError
	}
	levelMu.Lock()
	minLevel = lvl
	levelMu.Unlock()
}

func Debug(msg string, fields map[string]any) { emit(levelDebug, msg, fields) }
func Info(msg string, fields map[string]any)  { emit(levelInfo, msg, fields) }
func Warn(msg string, fields map[string]any)  { emit(levelWarn, msg, fields) }
func Error(msg string, fields map[string]any) { emit(levelError, msg, fields) }

func emit(level int, msg string, fields map[string]any) {
	levelMu.RLock()
	skip := level < minLevel
	levelMu.RUnlock()
	if skip {
		return
	}
	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = levelNames[level]
	entry["msg"] = msg
	LogRequest(entry)
}

// LogRequest emits a structured JSON log line.
func LogRequest(entry map[string]any) {
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
