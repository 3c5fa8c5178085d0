// Package logging provides the structured logger used across driftlens:
// leveled entries with correlation IDs, written to console and an optional
// rotating file sink, with a bounded in-memory ring buffer that backs the
// API's /debug/logs endpoint.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LogLevel represents the severity level of a log entry.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// LogEntry represents a structured log entry.
type LogEntry struct {
	ID            string                 `json:"id"`
	Level         LogLevel               `json:"level"`
	Message       string                 `json:"message"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Component     string                 `json:"component,omitempty"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
}

// Logger manages structured logging with multiple outputs.
type Logger struct {
	consoleLevel LogLevel
	fileLevel    LogLevel
	fileWriter   *os.File
	filePath     string
	maxSize      int64
	maxBackups   int
	mu           sync.Mutex
	ring         []*LogEntry
	ringSize     int
	flushTicker  *time.Ticker
	buffer       []*LogEntry
	bufferSize   int
	stopCh       chan struct{}
}

// Options configures a new Logger.
type Options struct {
	ConsoleLevel LogLevel
	FileLevel    LogLevel
	FilePath     string // empty disables the file sink
	MaxSizeMB    int
	MaxBackups   int
	BufferSize   int
	RingSize     int
}

// New creates a structured logger per opts, filling in sane defaults.
func New(opts Options) (*Logger, error) {
	if opts.ConsoleLevel == "" {
		opts.ConsoleLevel = LogLevelInfo
	}
	if opts.FileLevel == "" {
		opts.FileLevel = LogLevelWarning
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 5
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 100
	}
	if opts.RingSize <= 0 {
		opts.RingSize = 500
	}

	l := &Logger{
		consoleLevel: opts.ConsoleLevel,
		fileLevel:    opts.FileLevel,
		filePath:     opts.FilePath,
		maxSize:      int64(opts.MaxSizeMB) * 1024 * 1024,
		maxBackups:   opts.MaxBackups,
		bufferSize:   opts.BufferSize,
		buffer:       make([]*LogEntry, 0, opts.BufferSize),
		ringSize:     opts.RingSize,
		stopCh:       make(chan struct{}),
	}

	if opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.fileWriter = file
	}

	l.flushTicker = time.NewTicker(5 * time.Second)
	go l.flushWorker()

	return l, nil
}

// Log records an entry at the given level with free-form fields.
func (l *Logger) Log(level LogLevel, message string, fields map[string]interface{}) {
	entry := &LogEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Fields:    fields,
	}

	l.mu.Lock()
	l.buffer = append(l.buffer, entry)
	l.ring = append(l.ring, entry)
	if len(l.ring) > l.ringSize {
		l.ring = l.ring[len(l.ring)-l.ringSize:]
	}
	full := len(l.buffer) >= l.bufferSize
	var bufferCopy []*LogEntry
	if full {
		bufferCopy = make([]*LogEntry, len(l.buffer))
		copy(bufferCopy, l.buffer)
		l.buffer = l.buffer[:0]
	}
	l.mu.Unlock()

	if full {
		l.flushBuffer(bufferCopy)
	}
}

func (l *Logger) Debug(message string, fields map[string]interface{}) { l.Log(LogLevelDebug, message, fields) }
func (l *Logger) Info(message string, fields map[string]interface{})  { l.Log(LogLevelInfo, message, fields) }
func (l *Logger) Warn(message string, fields map[string]interface{})  { l.Log(LogLevelWarning, message, fields) }
func (l *Logger) Error(message string, fields map[string]interface{}) { l.Log(LogLevelError, message, fields) }

// WithFields returns a ContextLogger that merges fields into every call.
func (l *Logger) WithFields(fields map[string]interface{}) *ContextLogger {
	return &ContextLogger{logger: l, fields: fields}
}

// RecentEntries returns up to limit of the most recently logged entries,
// newest last. Backs the API's /debug/logs endpoint.
func (l *Logger) RecentEntries(limit int) []*LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.ring) {
		limit = len(l.ring)
	}
	out := make([]*LogEntry, limit)
	copy(out, l.ring[len(l.ring)-limit:])
	return out
}

// Close flushes pending entries and closes the file sink.
func (l *Logger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()

	l.mu.Lock()
	bufferCopy := make([]*LogEntry, len(l.buffer))
	copy(bufferCopy, l.buffer)
	l.buffer = nil
	l.mu.Unlock()

	if len(bufferCopy) > 0 {
		l.flushBuffer(bufferCopy)
	}

	if l.fileWriter != nil {
		return l.fileWriter.Close()
	}
	return nil
}

func (l *Logger) flushWorker() {
	for {
		select {
		case <-l.stopCh:
			return
		case <-l.flushTicker.C:
			l.mu.Lock()
			if len(l.buffer) == 0 {
				l.mu.Unlock()
				continue
			}
			bufferCopy := make([]*LogEntry, len(l.buffer))
			copy(bufferCopy, l.buffer)
			l.buffer = l.buffer[:0]
			l.mu.Unlock()
			l.flushBuffer(bufferCopy)
		}
	}
}

func (l *Logger) flushBuffer(entries []*LogEntry) {
	for _, entry := range entries {
		if levelPriority(entry.Level) >= levelPriority(l.consoleLevel) {
			l.writeToConsole(entry)
		}
		if l.fileWriter != nil && levelPriority(entry.Level) >= levelPriority(l.fileLevel) {
			l.writeToFile(entry)
		}
	}
}

func (l *Logger) writeToConsole(entry *LogEntry) {
	timestamp := entry.Timestamp.Format("2006-01-02 15:04:05")
	level := strings.ToUpper(string(entry.Level))

	var color string
	switch entry.Level {
	case LogLevelDebug:
		color = "\033[36m"
	case LogLevelInfo:
		color = "\033[32m"
	case LogLevelWarning:
		color = "\033[33m"
	case LogLevelError:
		color = "\033[31m"
	default:
		color = "\033[0m"
	}

	fmt.Printf("%s [%s%s\033[0m] %s", timestamp, color, level, entry.Message)
	if len(entry.Fields) > 0 {
		fieldsJSON, _ := json.Marshal(entry.Fields)
		fmt.Printf(" %s", string(fieldsJSON))
	}
	fmt.Println()
}

func (l *Logger) writeToFile(entry *LogEntry) {
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		log.Printf("failed to marshal log entry: %v", err)
		return
	}
	if _, err := l.fileWriter.Write(append(entryJSON, '\n')); err != nil {
		log.Printf("failed to write log file: %v", err)
		return
	}
	if stat, err := l.fileWriter.Stat(); err == nil && stat.Size() > l.maxSize {
		if err := l.rotate(); err != nil {
			log.Printf("failed to rotate log file: %v", err)
		}
	}
}

func (l *Logger) rotate() error {
	if err := l.fileWriter.Close(); err != nil {
		return err
	}
	for i := l.maxBackups - 1; i >= 0; i-- {
		oldPath := l.filePath
		if i > 0 {
			oldPath = fmt.Sprintf("%s.%d", l.filePath, i)
		}
		newPath := fmt.Sprintf("%s.%d", l.filePath, i+1)
		if _, err := os.Stat(oldPath); err == nil {
			os.Rename(oldPath, newPath)
		}
	}
	file, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	l.fileWriter = file
	return nil
}

func levelPriority(level LogLevel) int {
	switch level {
	case LogLevelDebug:
		return 1
	case LogLevelInfo:
		return 2
	case LogLevelWarning, "warn":
		return 3
	case LogLevelError:
		return 4
	default:
		return 0
	}
}

// ContextLogger carries a fixed set of fields (e.g. a request's
// correlation ID) across a chain of log calls.
type ContextLogger struct {
	logger *Logger
	fields map[string]interface{}
}

func (cl *ContextLogger) merge(extra map[string]interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(cl.fields)+len(extra))
	for k, v := range cl.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	return fields
}

func (cl *ContextLogger) Debug(message string, extra map[string]interface{}) {
	cl.logger.Debug(message, cl.merge(extra))
}
func (cl *ContextLogger) Info(message string, extra map[string]interface{}) {
	cl.logger.Info(message, cl.merge(extra))
}
func (cl *ContextLogger) Warn(message string, extra map[string]interface{}) {
	cl.logger.Warn(message, cl.merge(extra))
}
func (cl *ContextLogger) Error(message string, extra map[string]interface{}) {
	cl.logger.Error(message, cl.merge(extra))
}

// WithFields returns a new ContextLogger with additional fields merged in.
func (cl *ContextLogger) WithFields(fields map[string]interface{}) *ContextLogger {
	return &ContextLogger{logger: cl.logger, fields: cl.merge(fields)}
}

// PerformanceMonitor times named phases (the API times each synchronous
// analyze call) and keeps the aggregated timings in memory for Snapshot.
// It holds a Logger but does not write to it.
type PerformanceMonitor struct {
	logger  *Logger
	mu      sync.Mutex
	metrics map[string]*PerformanceMetric
}

// PerformanceMetric aggregates timings recorded under one name.
type PerformanceMetric struct {
	Name        string
	Count       int64
	TotalTime   time.Duration
	MinTime     time.Duration
	MaxTime     time.Duration
	LastUpdated time.Time
}

// NewPerformanceMonitor creates a monitor holding logger.
func NewPerformanceMonitor(logger *Logger) *PerformanceMonitor {
	return &PerformanceMonitor{logger: logger, metrics: make(map[string]*PerformanceMetric)}
}

// Timer is a running measurement started by StartTimer.
type Timer struct {
	name      string
	startTime time.Time
	monitor   *PerformanceMonitor
}

// StartTimer begins timing a named phase.
func (pm *PerformanceMonitor) StartTimer(name string) *Timer {
	return &Timer{name: name, startTime: time.Now(), monitor: pm}
}

// Stop records the elapsed time against the timer's name.
func (t *Timer) Stop() time.Duration {
	d := time.Since(t.startTime)
	t.monitor.record(t.name, d)
	return d
}

func (pm *PerformanceMonitor) record(name string, d time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	m := pm.metrics[name]
	if m == nil {
		m = &PerformanceMetric{Name: name, MinTime: time.Hour}
		pm.metrics[name] = m
	}
	m.Count++
	m.TotalTime += d
	m.LastUpdated = time.Now()
	if d < m.MinTime {
		m.MinTime = d
	}
	if d > m.MaxTime {
		m.MaxTime = d
	}
}

// Snapshot returns a copy of the currently recorded metrics.
func (pm *PerformanceMonitor) Snapshot() map[string]PerformanceMetric {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := make(map[string]PerformanceMetric, len(pm.metrics))
	for k, v := range pm.metrics {
		out[k] = *v
	}
	return out
}
