package flight

import (
	"fmt"
	"math"
	"strconv"
)

// LogTimeLayout is the clock format used in flight log lines
const LogTimeLayout = "15:04:05"

// FormatLogLine renders one event as "HH:MM:SS — message" in UTC
func FormatLogLine(e Event) string {
	return fmt.Sprintf("%s — %s", e.CreatedAt.UTC().Format(LogTimeLayout), e.Message)
}

// FormatLog renders events in the order given
func FormatLog(events []Event) []string {
	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(lines, FormatLogLine(e))
	}
	return lines
}

// FormatPosition renders a position summary such as
// "225° / 5.0 nm @ 2000 ft — RWY 22"
func FormatPosition(radial, distance, altitude *float64, runway string) string {
	if radial == nil || distance == nil || altitude == nil {
		return "No position data"
	}
	s := fmt.Sprintf("%d° / %.1f nm @ %s ft",
		int(math.Round(*radial)), *distance, strconv.FormatFloat(*altitude, 'f', -1, 64))
	if runway != "" {
		s += " — RWY " + runway
	}
	return s
}

// PositionSummary renders the flight's current position and runway
func (f *Flight) PositionSummary() string {
	runway := ""
	if f.RunwayInUse != nil {
		runway = *f.RunwayInUse
	}
	return FormatPosition(f.RadialDeg, f.DistanceNM, f.AltitudeFt, runway)
}
