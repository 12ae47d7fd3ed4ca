// Package logger writes service-prefixed log lines through a buffered background
// worker so request paths never block on log I/O. It also times calls:
//
//	defer logger.DeferLogDuration("msgRepo.Create", time.Now())()
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

const (
	asyncBufferSize = 8192
	slowCall        = 100 * time.Millisecond
)

type level int

const (
	levelDebug level = iota
	levelInfo
)

var (
	mu       sync.RWMutex
	prefix   string
	logLevel = levelInfo

	ch      chan string
	flushed chan struct{}
	once    sync.Once
	out     = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
)

func initWorker() {
	if os.Getenv("LOG_LEVEL") != "" {
		SetLevel(os.Getenv("LOG_LEVEL"))
	}
	ch = make(chan string, asyncBufferSize)
	flushed = make(chan struct{}, 1)
	go func() {
		for msg := range ch {
			if msg == "" {
				select {
				case flushed <- struct{}{}:
				default:
				}
				continue
			}
			out.Print(msg)
		}
	}()
}

func enqueue(msg string) {
	if msg == "" {
		return
	}
	once.Do(initWorker)
	select {
	case ch <- msg:
	default:
		// buffer full: drop rather than block the caller
	}
}

// SetPrefix sets the service tag prepended to every line ("api", "push").
func SetPrefix(p string) {
	mu.Lock()
	prefix = p
	mu.Unlock()
}

// SetLevel accepts "debug"/"trace" for verbose output; anything else means info.
func SetLevel(l string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug", "trace":
		logLevel = levelDebug
	default:
		logLevel = levelInfo
	}
}

// SetOutput redirects the worker's writer. Used by tests.
func SetOutput(w io.Writer) {
	out.SetOutput(w)
}

// Flush waits (up to timeout) until everything enqueued so far has been written.
func Flush(timeout time.Duration) {
	once.Do(initWorker)
	select {
	case ch <- "":
	case <-time.After(timeout):
		return
	}
	select {
	case <-flushed:
	case <-time.After(timeout):
	}
}

func tag() string {
	mu.RLock()
	defer mu.RUnlock()
	if prefix == "" {
		return ""
	}
	return "[" + prefix + "] "
}

func debugEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return logLevel == levelDebug
}

func Info(v ...any) {
	enqueue(tag() + fmt.Sprint(v...))
}

func Infof(format string, v ...any) {
	enqueue(tag() + fmt.Sprintf(format, v...))
}

// Debugf is dropped unless the level is debug.
func Debugf(format string, v ...any) {
	if !debugEnabled() {
		return
	}
	enqueue(tag() + "DEBUG: " + fmt.Sprintf(format, v...))
}

func Error(v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprint(v...))
}

func Errorf(format string, v ...any) {
	enqueue(tag() + "ERROR: " + fmt.Sprintf(format, v...))
}

// LogDuration logs fn and its elapsed milliseconds. At info level only calls slower
// than 100ms are logged; at debug level every call is.
func LogDuration(fn string, start time.Time) {
	elapsed := time.Since(start)
	if debugEnabled() || elapsed >= slowCall {
		enqueue(fmt.Sprintf("%sfn=%s duration_ms=%d", tag(), fn, elapsed.Milliseconds()))
	}
}

// DeferLogDuration returns a closure for defer: defer logger.DeferLogDuration("name", time.Now())().
func DeferLogDuration(fn string, start time.Time) func() {
	return func() { LogDuration(fn, start) }
}
