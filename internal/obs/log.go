package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the shared structured logger used across the service.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// LogRequest emits a structured JSON line for a completed HTTP request.
// Standard envelope fields are filled in when the caller omits them.
func LogRequest(entry map[string]any) {
	if _, ok := entry["level"]; !ok {
		entry["level"] = "info"
	}
	if _, ok := entry["msg"]; !ok {
		entry["msg"] = "request_complete"
	}
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Println(`{"ts":"error","level":"error","msg":"log marshal failed"}`)
		return
	}
	Logger().Println(string(data))
}
