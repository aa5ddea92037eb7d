package clunet

import "github.com/charmbracelet/log"

// asyncLog decouples the hot edge/compare-interrupt path from logger I/O
// latency: records are queued on a bounded channel and drained by a single
// background goroutine, the same way the original never let diagnostic
// printing block the ISR that produced it. A full queue drops the record
// rather than blocking — logging is diagnostic, not protocol-relevant (§7).
type asyncLog struct {
	out     *log.Logger
	records chan logRecord
}

type logLevel int

const (
	levelDebug logLevel = iota
	levelInfo
	levelWarn
)

type logRecord struct {
	level   logLevel
	msg     string
	keyvals []any
}

func newAsyncLog(out *log.Logger) *asyncLog {
	a := &asyncLog{out: out, records: make(chan logRecord, 64)}
	go a.drain()
	return a
}

func (a *asyncLog) drain() {
	for r := range a.records {
		switch r.level {
		case levelDebug:
			a.out.Debug(r.msg, r.keyvals...)
		case levelWarn:
			a.out.Warn(r.msg, r.keyvals...)
		default:
			a.out.Info(r.msg, r.keyvals...)
		}
	}
}

func (a *asyncLog) enqueue(level logLevel, msg string, keyvals ...any) {
	select {
	case a.records <- logRecord{level: level, msg: msg, keyvals: keyvals}:
	default:
	}
}

func (a *asyncLog) Debug(msg string, keyvals ...any) { a.enqueue(levelDebug, msg, keyvals...) }
func (a *asyncLog) Info(msg string, keyvals ...any)   { a.enqueue(levelInfo, msg, keyvals...) }
func (a *asyncLog) Warn(msg string, keyvals ...any)   { a.enqueue(levelWarn, msg, keyvals...) }
