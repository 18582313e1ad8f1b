package obs

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"time"
)

// Logger writes one JSON object per line.
type Logger struct {
	l   *log.Logger
	now func() time.Time
}

func NewLogger() *Logger {
	return NewLoggerTo(os.Stdout)
}

// NewLoggerTo writes to w; tests pass a buffer.
func NewLoggerTo(w io.Writer) *Logger {
	return &Logger{
		l:   log.New(w, "", 0),
		now: time.Now,
	}
}

// Nop discards everything.
func Nop() *Logger {
	return NewLoggerTo(io.Discard)
}

func (lg *Logger) Info(fields map[string]any) {
	lg.write("info", fields)
}

func (lg *Logger) Error(fields map[string]any) {
	lg.write("error", fields)
}

func (lg *Logger) write(level string, fields map[string]any) {
	if lg == nil {
		return
	}
	out := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		out[k] = v
	}
	out["level"] = level
	out["ts"] = lg.now().UTC().Format(time.RFC3339Nano)

	b, err := json.Marshal(out)
	if err != nil {
		lg.l.Printf(`{"level":"error","msg":"obs: marshal log fields: %s"}`, err)
		return
	}
	lg.l.Println(string(b))
}
