package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init initializes the global logger with dual sinks: os.Stderr and a rotating file.
// Stdout stays clean for command output and the MCP stdio transport.
func Init(verbose bool) {
	// 0. Load .env from the binary directory so ADOFLOW_LOG_DIR is available.
	// Init runs before config.Load, which repeats the load for the rest of the env.
	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		_ = godotenv.Load(filepath.Join(exeDir, ".env"))
	}

	// 1. Determine log level
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	// 2. Setup Stderr Writer (Console)
	isTerminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal,
	}

	// 3. Setup File Writer (Rotating)
	logDir := os.Getenv("ADOFLOW_LOG_DIR")
	if logDir == "" {
		if err == nil {
			logDir = filepath.Join(filepath.Dir(exePath), "logs")
		} else {
			logDir = "logs"
		}
	}

	fileWriter := openRotatingFile(logDir)

	// 4. Combine Writers. A missing or read-only log directory degrades to
	// console-only logging instead of aborting the run.
	var sink io.Writer = consoleWriter
	if fileWriter != nil {
		sink = zerolog.MultiLevelWriter(consoleWriter, fileWriter)
	}

	// 5. Set Global Logger
	log.Logger = zerolog.New(sink).
		With().
		Timestamp().
		Logger()

	if fileWriter == nil {
		log.Warn().Str("dir", logDir).Msg("Log directory not writable, file logging disabled")
	}
}

func openRotatingFile(logDir string) *lumberjack.Logger {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to create log directory %q: %v\n", logDir, err)
		return nil
	}

	// MkdirAll succeeds on an existing read-only directory, so probe with a real write.
	testFile := filepath.Join(logDir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: log directory %q is not writable: %v\n", logDir, err)
		return nil
	}
	_ = os.Remove(testFile)

	return &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "adoflow.log"),
		MaxSize:    16, // megabytes
		MaxBackups: 32,
		MaxAge:     365, // days
		Compress:   true,
	}
}
