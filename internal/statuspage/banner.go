package statuspage

import "github.com/uptimer-dev/uptimer/internal/storage"

// Banner levels, worst case wins.
const (
	BannerOperational   = "operational"
	BannerPartialOutage = "partial_outage"
	BannerMajorOutage   = "major_outage"
	BannerMaintenance   = "maintenance"
	BannerUnknown       = "unknown"
)

// Banner is the single summary line atop the status page.
type Banner struct {
	Level   string `json:"level"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
}

// majorDownRatio is the fraction of monitors down at which an outage is
// reported as major rather than partial.
const majorDownRatio = 0.3

// ComputeBanner derives the banner from open incidents, effective status
// counts, and active maintenance. Pure function: same inputs, same banner.
// Open incidents take precedence over derived monitor state.
func ComputeBanner(openIncidents []*storage.Incident, counts Summary, activeMaintenance []*storage.MaintenanceWindow) Banner {
	if len(openIncidents) > 0 {
		level := BannerOperational
		for _, inc := range openIncidents {
			switch inc.Impact {
			case storage.ImpactMajor, storage.ImpactCritical:
				level = BannerMajorOutage
			case storage.ImpactMinor:
				if level != BannerMajorOutage {
					level = BannerPartialOutage
				}
			}
		}
		top := openIncidents[0]
		return Banner{Level: level, Title: top.Title, Message: top.Message}
	}

	switch {
	case counts.Down > 0:
		if counts.Total > 0 && float64(counts.Down)/float64(counts.Total) >= majorDownRatio {
			return Banner{Level: BannerMajorOutage}
		}
		return Banner{Level: BannerPartialOutage}
	case counts.Unknown > 0:
		return Banner{Level: BannerUnknown}
	case len(activeMaintenance) > 0 || counts.Maintenance > 0:
		b := Banner{Level: BannerMaintenance}
		if len(activeMaintenance) > 0 {
			b.Title = activeMaintenance[0].Title
			b.Message = activeMaintenance[0].Message
		}
		return b
	default:
		return Banner{Level: BannerOperational}
	}
}
