package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type Logger struct {
	output         io.Writer
	minLevel       Level
	categoryWidth  int
	categoryFilter map[string]bool
}

var (
	defaultLogger *Logger
	mu            sync.Mutex
	logFile       *os.File
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

func init() {
	defaultLogger = &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// RegisterCategories sizes the category column so log lines stay aligned.
func RegisterCategories(categories ...string) {
	mu.Lock()
	defer mu.Unlock()

	maxLen := len("warning")
	for _, cat := range categories {
		if len(cat) > maxLen {
			maxLen = len(cat)
		}
	}
	defaultLogger.categoryWidth = maxLen + 1
}

func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		defaultLogger.output = os.Stdout
	} else {
		defaultLogger.output = w
	}
}

func SetLogFile(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	logFile = f
	defaultLogger.output = io.MultiWriter(os.Stdout, f)
	return nil
}

func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Sync()
		logFile.Close()
		logFile = nil
		defaultLogger.output = os.Stdout
	}
}

func SetMinLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger.minLevel = level
}

// SetCategoryFilter restricts info output to the named categories.
// Errors and warnings always pass; a named debug category passes regardless of level.
func SetCategoryFilter(categories []string) {
	mu.Lock()
	defer mu.Unlock()

	if len(categories) == 0 {
		defaultLogger.categoryFilter = nil
		return
	}

	defaultLogger.categoryFilter = make(map[string]bool, len(categories))
	for _, cat := range categories {
		defaultLogger.categoryFilter[cat] = true
	}
}

func IsCategoryEnabled(category string) bool {
	mu.Lock()
	defer mu.Unlock()
	ok, _ := defaultLogger.shouldLog(category)
	return ok
}

func Printf(category string, format string, v ...interface{}) {
	defaultLogger.printf(category, format, v...)
}

func Error(format string, v ...interface{}) {
	defaultLogger.printf("error", format, v...)
}

func Warning(format string, v ...interface{}) {
	defaultLogger.printf("warning", format, v...)
}

func Fatal(format string, v ...interface{}) {
	defaultLogger.printf("error", format, v...)
	Close()
	os.Exit(1)
}

func (l *Logger) shouldLog(category string) (bool, string) {
	explicitlyAllowed := l.categoryFilter != nil && l.categoryFilter[category]

	if !explicitlyAllowed {
		if levelForCategory(category) < l.minLevel {
			return false, ""
		}
		if l.categoryFilter != nil && category != "error" && category != "warning" {
			return false, ""
		}
	}

	if !validateCategory(category) {
		category = "invalid_category"
	}
	return true, category
}

func (l *Logger) printf(category string, format string, v ...interface{}) {
	mu.Lock()
	ok, category := l.shouldLog(category)
	width := l.categoryWidth
	mu.Unlock()
	if !ok {
		return
	}

	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		if buf.Cap() <= 64*1024 {
			bufferPool.Put(buf)
		}
	}()

	buf.WriteString(time.Now().Format("2006-01-02 15:04:05"))
	buf.WriteByte(' ')
	buf.WriteString(category)
	for i := len(category); i < width; i++ {
		buf.WriteByte(' ')
	}
	buf.WriteByte(' ')

	fmt.Fprintf(buf, format, v...)
	if buf.Bytes()[buf.Len()-1] != '\n' {
		buf.WriteByte('\n')
	}

	mu.Lock()
	l.output.Write(buf.Bytes())
	mu.Unlock()
}

func FormatCount(n int64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.1fB", float64(n)/1_000_000_000)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

func FormatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)
	switch {
	case b >= TB:
		return fmt.Sprintf("%.1f TB", float64(b)/TB)
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/GB)
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/MB)
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/KB)
	default:
		return fmt.Sprintf("%d B", b)
	}
}
