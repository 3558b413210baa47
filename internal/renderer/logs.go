package renderer

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/runtime"
)

// pageLog accumulates the console output of the page, in arrival order.
type pageLog struct {
	mu       sync.Mutex
	messages []string
}

func (l *pageLog) append(msg string) {
	if msg == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *pageLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *pageLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = nil
}

// handle converts a CDP event into a log line. Unrelated events are ignored.
func (l *pageLog) handle(ev interface{}) {
	switch e := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		l.append(consoleMessage(e))
	case *log.EventEntryAdded:
		l.append(logEntryMessage(e))
	case *runtime.EventExceptionThrown:
		l.append(exceptionMessage(e))
	}
}

func consoleMessage(e *runtime.EventConsoleAPICalled) string {
	var text strings.Builder
	for i, arg := range e.Args {
		if i > 0 {
			text.WriteString(" ")
		}
		var val interface{}
		switch {
		case arg.Value != nil && json.Unmarshal(arg.Value, &val) == nil:
			text.WriteString(fmt.Sprintf("%v", val))
		case arg.Description != "":
			text.WriteString(arg.Description)
		default:
			text.WriteString(fmt.Sprintf("[%s]", arg.Type))
		}
	}
	return fmt.Sprintf("console.%s: %s", e.Type, text.String())
}

func logEntryMessage(e *log.EventEntryAdded) string {
	if e.Entry == nil {
		return ""
	}
	msg := fmt.Sprintf("%s (%s): %s", e.Entry.Level, e.Entry.Source, e.Entry.Text)
	if e.Entry.URL != "" {
		msg += " [" + e.Entry.URL + "]"
	}
	return msg
}

func exceptionMessage(e *runtime.EventExceptionThrown) string {
	if e.ExceptionDetails == nil {
		return ""
	}
	// The description carries the stack trace when there is one.
	text := e.ExceptionDetails.Text
	if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
		text = e.ExceptionDetails.Exception.Description
	}
	return "Uncaught exception: " + text
}
