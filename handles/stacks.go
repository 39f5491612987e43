package handles

import (
	"runtime"
	"strconv"
	"strings"
)

// goroutineInfo is one parsed entry from a full runtime stack dump.
type goroutineInfo struct {
	id          uint64
	state       string
	topFunction string
	createdBy   string
}

// ignoredTopPrefixes filters goroutines that belong to the runtime, the test
// framework, or the poller rather than to user resources.
var ignoredTopPrefixes = []string{
	"runtime.",
	"testing.",
	"os/signal.",
	"internal/poll.runtime_pollWait",
}

// captureGoroutines parses a full runtime.Stack dump into per-goroutine
// entries, excluding the calling goroutine and known infrastructure
// goroutines.
func captureGoroutines() []goroutineInfo {
	buf := make([]byte, 1<<20)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, 2*len(buf))
	}

	self := currentGoroutineID()

	var infos []goroutineInfo
	for _, block := range strings.Split(string(buf), "\n\n") {
		info, ok := parseGoroutineBlock(block)
		if !ok || info.id == self {
			continue
		}
		if isIgnoredGoroutine(info) {
			continue
		}
		infos = append(infos, info)
	}
	return infos
}

// parseGoroutineBlock parses one "goroutine N [state]:" block.
func parseGoroutineBlock(block string) (goroutineInfo, bool) {
	lines := strings.Split(strings.TrimSpace(block), "\n")
	if len(lines) < 2 {
		return goroutineInfo{}, false
	}

	header := lines[0]
	if !strings.HasPrefix(header, "goroutine ") {
		return goroutineInfo{}, false
	}
	rest := strings.TrimPrefix(header, "goroutine ")
	idEnd := strings.IndexByte(rest, ' ')
	if idEnd < 0 {
		return goroutineInfo{}, false
	}
	id, err := strconv.ParseUint(rest[:idEnd], 10, 64)
	if err != nil {
		return goroutineInfo{}, false
	}

	info := goroutineInfo{id: id}
	if start := strings.IndexByte(header, '['); start >= 0 {
		if end := strings.IndexByte(header[start:], ']'); end > 0 {
			info.state = header[start+1 : start+end]
		}
	}

	// The first non-header line is the innermost frame's function.
	info.topFunction = trimFunctionLine(lines[1])

	for _, line := range lines {
		if strings.HasPrefix(line, "created by ") {
			info.createdBy = strings.TrimPrefix(line, "created by ")
			break
		}
	}
	return info, true
}

// trimFunctionLine strips the argument list from a stack frame function line.
func trimFunctionLine(line string) string {
	line = strings.TrimSpace(line)
	if idx := strings.LastIndexByte(line, '('); idx > 0 {
		return line[:idx]
	}
	return line
}

// isIgnoredGoroutine reports whether a goroutine belongs to infrastructure
// rather than user resources.
func isIgnoredGoroutine(info goroutineInfo) bool {
	for _, prefix := range ignoredTopPrefixes {
		if strings.HasPrefix(info.topFunction, prefix) {
			return true
		}
	}
	return false
}

// currentGoroutineID parses the calling goroutine's ID from a single-
// goroutine stack dump.
func currentGoroutineID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	header := string(buf[:n])
	header = strings.TrimPrefix(header, "goroutine ")
	if idEnd := strings.IndexByte(header, ' '); idEnd > 0 {
		if id, err := strconv.ParseUint(header[:idEnd], 10, 64); err == nil {
			return id
		}
	}
	return 0
}

// creationStack captures the stack of the caller's caller, used to record
// where a tracked handle was created.
func creationStack() string {
	buf := make([]byte, 1<<14)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
