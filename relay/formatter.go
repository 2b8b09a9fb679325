package relay

import (
	"fmt"

	"github.com/lelanhus/ruckcore/engine"
)

// FormatMetrics renders one snapshot as a single CRLF-terminated line for
// downstream line-protocol consumers.
func FormatMetrics(s engine.Snapshot) []byte {
	ts := s.Timestamp.Format("20060102150405.000")
	line := fmt.Sprintf("metrics,%s,%s,%.6f,%.6f,%.1f,%.2f,%s,%s,%.1f,%.1f,%.1f,%s,%.2f,%.3f,%.1f,%.1f\r\n",
		s.SessionID, ts,
		s.Latitude, s.Longitude, s.Altitude, s.SpeedMps,
		s.FixQuality, s.Movement,
		s.GradePct, s.CumulativeGainM, s.CumulativeLossM,
		s.Terrain, s.TerrainMultiplier,
		s.RateKcalPerMin, s.CumulativeKcal, s.DistanceM)
	return []byte(line)
}

// FormatSummary renders the final snapshot totals as one line.
func FormatSummary(s engine.Snapshot) []byte {
	ts := s.Timestamp.Format("20060102150405.000")
	line := fmt.Sprintf("summary,%s,%s,%.0f,%.1f,%.2f,%.1f,%.1f,%.1f\r\n",
		s.SessionID, ts,
		s.DurationSec, s.DistanceM, s.AvgSpeedMps,
		s.CumulativeKcal, s.CumulativeGainM, s.CumulativeLossM)
	return []byte(line)
}
