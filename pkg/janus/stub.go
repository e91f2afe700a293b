//go:build janus_testgateway

package janus

/*
#include "janus_abi.h"
*/
import "C"

import (
	"sync"

	"github.com/arqut/janus-plugin-go/pkg/logger"
)

var stubLog struct {
	sync.Mutex
	lines []string
}

//export goStubLogLine
func goStubLogLine(line *C.char) {
	stubLog.Lock()
	defer stubLog.Unlock()
	stubLog.lines = append(stubLog.lines, C.GoString(line))
}

// StubLogLines returns and clears everything written to the test gateway's log.
func StubLogLines() []string {
	stubLog.Lock()
	defer stubLog.Unlock()
	lines := stubLog.lines
	stubLog.lines = nil
	return lines
}

// SetStubLogParams sets the test gateway's log level and formatting globals.
func SetStubLogParams(level logger.Level, timestamps, colors bool) {
	C.janus_log_level = C.int(level)
	C.janus_log_timestamps = cBool(timestamps)
	C.janus_log_colors = cBool(colors)
}

func cBool(b bool) C.gboolean {
	if b {
		return 1
	}
	return 0
}
