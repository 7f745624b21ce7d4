package settings

import (
	"time"
)

// Documented defaults for keys absent from the settings tables.
const (
	DefaultSystemActive            = true
	DefaultFuzzyThreshold          = 0.3
	DefaultMaxCheckoutHours        = 72.0
	DefaultAllowUnreturnedCheckout = false
	DefaultBikesTable              = "Bikes"
	DefaultUsersTable              = "Users"
	DefaultLogTable                = "Log"
)

// DefaultEmailDomains is used when lists.email_domains is absent.
var DefaultEmailDomains = []string{"inst.edu"}

// Snapshot is an immutable view of the settings at load time.
type Snapshot struct {
	sections map[string]map[string]any
	loadedAt time.Time
	missing  []string
}

// NewSnapshot builds a snapshot from already-converted values. It is meant
// for tests and tools; the Cache builds snapshots from the settings tables.
func NewSnapshot(values map[string]map[string]any) *Snapshot {
	sections := make(map[string]map[string]any, len(values))
	for name, kv := range values {
		m := make(map[string]any, len(kv))
		for k, v := range kv {
			m[normalizeKey(k)] = v
		}
		sections[name] = m
	}
	return &Snapshot{sections: sections, loadedAt: time.Now()}
}

// LoadedAt reports when the snapshot was read.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Missing lists sections that were absent at load.
func (s *Snapshot) Missing() []string { return append([]string(nil), s.missing...) }

// Sections lists the loaded section names.
func (s *Snapshot) Sections() []string {
	out := make([]string, 0, len(s.sections))
	for name := range s.sections {
		out = append(out, name)
	}
	return out
}

// Values returns a copy of one section.
func (s *Snapshot) Values(section string) map[string]any {
	out := make(map[string]any, len(s.sections[section]))
	for k, v := range s.sections[section] {
		out[k] = v
	}
	return out
}

func (s *Snapshot) lookup(section, key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.sections[section][normalizeKey(key)]
	return v, ok
}

// Bool returns a button value or def.
func (s *Snapshot) Bool(section, key string, def bool) bool {
	if v, ok := s.lookup(section, key); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Number returns a number value or def.
func (s *Snapshot) Number(section, key string, def float64) float64 {
	if v, ok := s.lookup(section, key); ok {
		if n, ok := v.(float64); ok {
			return n
		}
	}
	return def
}

// String returns a non-empty string value or def.
func (s *Snapshot) String(section, key, def string) string {
	if v, ok := s.lookup(section, key); ok {
		if str, ok := v.(string); ok && str != "" {
			return str
		}
	}
	return def
}

// Strings returns a non-empty array value or def.
func (s *Snapshot) Strings(section, key string, def []string) []string {
	if v, ok := s.lookup(section, key); ok {
		if arr, ok := v.([]string); ok && len(arr) > 0 {
			return append([]string(nil), arr...)
		}
	}
	return append([]string(nil), def...)
}

// Time returns a datetime value or the zero time.
func (s *Snapshot) Time(section, key string) time.Time {
	if v, ok := s.lookup(section, key); ok {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}
	return time.Time{}
}

// SystemActive reports system.system_active.
func (s *Snapshot) SystemActive() bool {
	return s.Bool(SectionSystem, "system_active", DefaultSystemActive)
}

// AllowUnreturnedCheckout reports system.can_checkout_with_unreturned_bike.
func (s *Snapshot) AllowUnreturnedCheckout() bool {
	return s.Bool(SectionSystem, "can_checkout_with_unreturned_bike", DefaultAllowUnreturnedCheckout)
}

// FuzzyThreshold reports thresholds.fuzzy_threshold.
func (s *Snapshot) FuzzyThreshold() float64 {
	v := s.Number(SectionThresholds, "fuzzy_threshold", DefaultFuzzyThreshold)
	if v <= 0 || v > 1 {
		return DefaultFuzzyThreshold
	}
	return v
}

// MaxCheckoutHours reports thresholds.max_checkout_hours.
func (s *Snapshot) MaxCheckoutHours() float64 {
	v := s.Number(SectionThresholds, "max_checkout_hours", DefaultMaxCheckoutHours)
	if v <= 0 {
		return DefaultMaxCheckoutHours
	}
	return v
}

// EmailDomains reports lists.email_domains.
func (s *Snapshot) EmailDomains() []string {
	return s.Strings(SectionLists, "email_domains", DefaultEmailDomains)
}

// AdminEmail reports contacts.admin_email.
func (s *Snapshot) AdminEmail() string {
	return s.String(SectionContacts, "admin_email", "")
}

// DeveloperEmail reports contacts.developer_email.
func (s *Snapshot) DeveloperEmail() string {
	return s.String(SectionContacts, "developer_email", "")
}

// BikesTable reports sheets.bikes.
func (s *Snapshot) BikesTable() string { return s.String(SectionSheets, "bikes", DefaultBikesTable) }

// UsersTable reports sheets.users.
func (s *Snapshot) UsersTable() string { return s.String(SectionSheets, "users", DefaultUsersTable) }

// LogTable reports sheets.log.
func (s *Snapshot) LogTable() string { return s.String(SectionSheets, "log", DefaultLogTable) }

// Message returns the message template registered for a notification code.
func (s *Snapshot) Message(code string) (string, bool) {
	v, ok := s.lookup(SectionMessages, code)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok && str != ""
}
