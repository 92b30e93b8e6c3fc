package device

import (
	"strings"

	"github.com/atvirokodosprendimai/trustgate/internal/core/domain"
	ua "github.com/mileusna/useragent"
)

const (
	TypeDesktop = "desktop"
	TypeMobile  = "mobile"
	TypeTablet  = "tablet"
	TypeBot     = "bot"
	unknown     = "Unknown"
)

// Detector derives device metadata from a User-Agent header.
type Detector struct{}

func NewDetector() Detector {
	return Detector{}
}

func (Detector) Detect(userAgent string) domain.DeviceInfo {
	info := domain.DeviceInfo{
		Browser:    unknown,
		OS:         unknown,
		DeviceType: TypeDesktop,
		UserAgent:  userAgent,
	}
	if strings.TrimSpace(userAgent) == "" {
		return info
	}

	parsed := ua.Parse(userAgent)
	if name := strings.TrimSpace(parsed.Name); name != "" {
		info.Browser = name
	}
	if os := strings.TrimSpace(parsed.OS); os != "" {
		info.OS = os
	}

	switch {
	case parsed.Bot:
		info.DeviceType = TypeBot
	case parsed.Tablet:
		info.DeviceType = TypeTablet
	case parsed.Mobile:
		info.DeviceType = TypeMobile
	}
	return info
}
