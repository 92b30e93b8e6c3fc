package domain

import (
	"fmt"
	"time"
)

const DefaultSessionTTL = 30 * 24 * time.Hour

type DeviceInfo struct {
	Browser    string `json:"browser"`
	OS         string `json:"os"`
	DeviceType string `json:"device_type"`
	UserAgent  string `json:"user_agent,omitempty"`
}

// Label renders a short human name like "Chrome on macOS".
func (d DeviceInfo) Label() string {
	browser := d.Browser
	if browser == "" {
		browser = "Unknown Browser"
	}
	os := d.OS
	if os == "" {
		os = "Unknown OS"
	}
	return fmt.Sprintf("%s on %s", browser, os)
}

// ClientInfo is what the transport layer knows about the caller.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

type Session struct {
	ID             string
	UserID         string
	TokenHash      string
	Device         DeviceInfo
	Geolocation    *Geolocation
	IPAddress      string
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
}

func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
