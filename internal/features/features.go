// Package features provides per-request feature flag snapshots.
package features

import (
	"strings"
)

// Snapshot is an immutable view of the feature flags, taken once at the
// start of request handling. The zero value carries the documented defaults:
// debug tool on, theme customization off, no blocked hosts.
type Snapshot struct {
	debugTool          *bool
	themeCustomization bool
	blockedHosts       map[string]struct{}
}

// NewSnapshot builds a snapshot from explicit values. A nil debugTool means
// the flag is absent from the source.
func NewSnapshot(debugTool *bool, themeCustomization bool, blockedHosts []string) Snapshot {
	s := Snapshot{
		debugTool:          debugTool,
		themeCustomization: themeCustomization,
	}
	if len(blockedHosts) > 0 {
		s.blockedHosts = make(map[string]struct{}, len(blockedHosts))
		for _, h := range blockedHosts {
			s.blockedHosts[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
		}
	}
	return s
}

// Defaults returns the snapshot used when the flag source is missing or
// unreadable.
func Defaults() Snapshot {
	return Snapshot{}
}

// DebugToolEnabled reports whether debug tool injection is on. The flag is
// default-on: absence or explicit true enable it, only explicit false
// disables it.
func (s Snapshot) DebugToolEnabled() bool {
	return s.debugTool == nil || *s.debugTool
}

// ThemeCustomizationEnabled reports whether the theme stylesheet is injected.
func (s Snapshot) ThemeCustomizationEnabled() bool {
	return s.themeCustomization
}

// HostBlocked reports whether a target host is on the blocklist.
func (s Snapshot) HostBlocked(host string) bool {
	_, ok := s.blockedHosts[strings.ToLower(host)]
	return ok
}
