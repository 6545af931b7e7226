package functions

import (
	"strconv"
	"strings"
	"time"
)

type unitSuffix struct {
	suffix     string
	multiplier int
}

var (
	memoryUnits  = []unitSuffix{{"gb", 1024}, {"g", 1024}, {"mb", 1}, {"m", 1}}
	timeoutUnits = []unitSuffix{{"m", 60}, {"s", 1}}
)

// parseMemoryMB parses "512", "512mb" or "1gb" into megabytes. Invalid input yields 0.
func parseMemoryMB(s string) int {
	return parseScaled(strings.ToLower(s), memoryUnits)
}

// parseTimeoutSeconds parses "30", "30s", "5m" or a Go duration into seconds.
func parseTimeoutSeconds(s string) int {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return int(d / time.Second)
	}
	return parseScaled(s, timeoutUnits)
}

func parseScaled(s string, units []unitSuffix) int {
	s = strings.TrimSpace(s)
	multiplier := 1
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSuffix(s, u.suffix)
			multiplier = u.multiplier
			break
		}
	}

	value, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || value < 0 {
		return 0
	}
	return value * multiplier
}
