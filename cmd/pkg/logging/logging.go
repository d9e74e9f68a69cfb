package logging

import (
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// writerHook раздаёт каждую запись во все writers, начиная с уровня LogLevels.
type writerHook struct {
	Writer    []io.Writer
	LogLevels []logrus.Level
}

func (hook *writerHook) Fire(entry *logrus.Entry) error {
	line, err := entry.String()
	if err != nil {
		return err
	}
	for _, w := range hook.Writer {
		if _, err := w.Write([]byte(line)); err != nil {
			return err
		}
	}
	return nil
}

func (hook *writerHook) Levels() []logrus.Level {
	return hook.LogLevels
}

var (
	e    *logrus.Entry
	mu   sync.RWMutex
	once sync.Once
)

// Logger is a logrus entry with a couple of helpers used across services.
type Logger struct {
	*logrus.Entry
}

// GetLogger returns the process-wide logger.
func GetLogger() *Logger {
	once.Do(initLogger)
	mu.RLock()
	defer mu.RUnlock()
	return &Logger{e}
}

// GetLoggerWithField returns a child logger carrying k=v on every entry.
func (l *Logger) GetLoggerWithField(k string, v interface{}) *Logger {
	return &Logger{l.WithField(k, v)}
}

// GetLoggerWithFields returns a child logger carrying all given fields.
func (l *Logger) GetLoggerWithFields(fields logrus.Fields) *Logger {
	return &Logger{l.WithFields(fields)}
}

// Configure switches level and formatter once config is known.
// debug=true gives a human readable text format with caller info, otherwise JSON.
func Configure(level string, debug bool) error {
	once.Do(initLogger)

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return fmt.Errorf("unknown log level %q: %w", level, err)
	}

	mu.Lock()
	defer mu.Unlock()

	l := e.Logger
	l.SetLevel(lvl)
	if debug {
		l.SetFormatter(textFormatter())
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			CallerPrettyfier: callerPrettyfier,
		})
	}
	return nil
}

// SetOutput перенаправляет все записи в writers. CLI пишет логи в stderr, чтобы
// не смешивать их с JSON в stdout.
func SetOutput(writers ...io.Writer) {
	once.Do(initLogger)

	mu.Lock()
	defer mu.Unlock()

	hooks := make(logrus.LevelHooks)
	hooks.Add(&writerHook{Writer: writers, LogLevels: logrus.AllLevels})
	e.Logger.ReplaceHooks(hooks)
}

// NewNop returns a logger that drops everything. Handy in tests.
func NewNop() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{logrus.NewEntry(l)}
}

func callerPrettyfier(frame *runtime.Frame) (string, string) {
	filename := path.Base(frame.File)
	return fmt.Sprintf("%s()", frame.Function), fmt.Sprintf("%s:%d", filename, frame.Line)
}

func textFormatter() *logrus.TextFormatter {
	return &logrus.TextFormatter{
		CallerPrettyfier: callerPrettyfier,
		DisableColors:    false,
		FullTimestamp:    true,
	}
}

func initLogger() {
	l := logrus.New()
	l.SetReportCaller(true)
	l.Formatter = textFormatter()

	// Вывод идёт через hook, стандартный output глушим.
	l.SetOutput(io.Discard)
	l.AddHook(&writerHook{
		Writer:    []io.Writer{os.Stdout},
		LogLevels: logrus.AllLevels,
	})
	l.SetLevel(logrus.InfoLevel)

	e = logrus.NewEntry(l)
}
