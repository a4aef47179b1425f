package env

import (
	"os"
	"strconv"
	"time"
)

func Test() bool {
	return os.Getenv("TEST_MODE") != ""
}

func Debug() bool {
	return os.Getenv("DEBUG") != ""
}

// Timeout returns the render timeout set through D2RENDER_TIMEOUT.
// Plain integers are seconds, anything else is parsed as a time.Duration.
func Timeout() (time.Duration, bool) {
	s := os.Getenv("D2RENDER_TIMEOUT")
	if s == "" {
		return 0, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(i) * time.Second, true
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, true
	}
	return 0, false
}
