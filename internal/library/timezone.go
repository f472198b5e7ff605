package library

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LoadLocation resolves the display zone. When the zone database lacks name
// a fixed offset of fallbackHours is used instead.
func LoadLocation(name string, fallbackHours int, logger *zap.Logger) *time.Location {
	if name == "" || name == "UTC" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc
	}
	if logger != nil {
		logger.Warn("timezone unavailable, using fixed offset",
			zap.String("timezone", name), zap.Int("offset_hours", fallbackHours), zap.Error(err))
	}
	return time.FixedZone(fmt.Sprintf("UTC%+d", fallbackHours), fallbackHours*3600)
}
