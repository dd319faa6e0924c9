package assert

import "fmt"

func NotNil(obj any, format string, args ...interface{}) {
	if obj == nil {
		panic(formatMsg(format, args...))
	}
}

// True panics with the formatted message unless cond holds.
func True(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(formatMsg(format, args...))
	}
}

func formatMsg(format string, args ...interface{}) string {
	return "assertion failed: " + fmt.Sprintf(format, args...)
}
