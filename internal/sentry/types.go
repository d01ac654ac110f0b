// Package sentry parses Sentry client SDK wire payloads — single
// "store" events and multi-item "envelopes" — into the flat,
// fully-optional in-memory shapes the digest worker consumes. Field
// shapes are ported from original_source/src/shared/domain/sentry_report.rs
// (contexts.device/os/app/culture, exception.values[0], tags) and
// translated into Go structs with a conservative-fallback lookup
// style (user.id ?? user.username ?? user.email) rather than strict
// schema enforcement, per the governing spec's design notes.
package sentry

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// Parser-level error kinds. Callers distinguish these with errors.Is.
var (
	ErrMalformedJSON          = errors.New("sentry: malformed json")
	ErrMissingEventID         = errors.New("sentry: missing event_id")
	ErrMissingTimestamp       = errors.New("sentry: missing timestamp")
	ErrUnsupportedEnvelope    = errors.New("sentry: unsupported envelope format")
)

// Frame is one stack frame as carried on the wire.
type Frame struct {
	Function string `json:"function,omitempty"`
	Module   string `json:"module,omitempty"`
	Package  string `json:"package,omitempty"`
	Filename string `json:"filename,omitempty"`
	AbsPath  string `json:"abs_path,omitempty"`
	InApp    bool   `json:"in_app,omitempty"`
}

// DeviceSpecs is the composite tuple stored in unwrap_device_specs.
type DeviceSpecs struct {
	ScreenWidth     *int32
	ScreenHeight    *int32
	ScreenDensity   *float64
	ScreenDPI       *int32
	ProcessorCount  *int32
	MemorySize      *int64
	Archs           *string // JSON-encoded array, or nil
}

// IsZero reports whether every field of the tuple is nil — such a
// report carries no device context at all, so no row should be
// inserted.
func (d DeviceSpecs) IsZero() bool {
	return d.ScreenWidth == nil && d.ScreenHeight == nil && d.ScreenDensity == nil &&
		d.ScreenDPI == nil && d.ProcessorCount == nil && d.MemorySize == nil && d.Archs == nil
}

// Report is the flat, fully-optional record the digest worker turns
// into dimension lookups, a fingerprint, and a report row.
type Report struct {
	EventID     string
	Timestamp   int64 // seconds since epoch
	Platform    string
	Environment string

	OSName    string
	OSVersion string

	Manufacturer string
	Brand        string
	Model        string
	Chipset      string
	DeviceSpecs  DeviceSpecs

	LocaleCode      string
	Timezone        string
	ConnectionType  string
	Orientation     string

	AppName    string
	AppVersion string
	AppBuild   string

	UserID string

	ExceptionType    string
	ExceptionMessage string
	Frames           []Frame
}

// rawEvent is the nested wire shape as it actually arrives.
type rawEvent struct {
	EventID     string          `json:"event_id"`
	Timestamp   json.RawMessage `json:"timestamp"`
	Platform    string          `json:"platform"`
	Environment string          `json:"environment"`
	Contexts    struct {
		OS struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"os"`
		Device struct {
			Manufacturer       string          `json:"manufacturer"`
			Brand              string          `json:"brand"`
			Model              string          `json:"model"`
			Chipset            string          `json:"chipset"`
			Family             string          `json:"family"`
			ModelID            string          `json:"model_id"`
			Arch               string          `json:"arch"`
			Archs              []string        `json:"archs"`
			ScreenWidthPixels  *int32          `json:"screen_width_pixels"`
			ScreenHeightPixels *int32          `json:"screen_height_pixels"`
			ScreenDensity      *float64        `json:"screen_density"`
			ScreenDPI          *int32          `json:"screen_dpi"`
			ProcessorCount     *int32          `json:"processor_count"`
			MemorySize         *int64          `json:"memory_size"`
			Locale             string          `json:"locale"`
			Timezone           string          `json:"timezone"`
			ConnectionType     string          `json:"connection_type"`
			Orientation        string          `json:"orientation"`
		} `json:"device"`
		App struct {
			AppName       string `json:"app_name"`
			AppVersion    string `json:"app_version"`
			AppBuild      string `json:"app_build"`
			AppIdentifier string `json:"app_identifier"`
		} `json:"app"`
		Culture struct {
			Locale   string `json:"locale"`
			Timezone string `json:"timezone"`
		} `json:"culture"`
	} `json:"contexts"`
	Tags interface{} `json:"tags"`
	Exception struct {
		Values []struct {
			Type       string `json:"type"`
			Value      string `json:"value"`
			Stacktrace struct {
				Frames []Frame `json:"frames"`
			} `json:"stacktrace"`
		} `json:"values"`
	} `json:"exception"`
	User struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		Username string `json:"username"`
	} `json:"user"`
	Release string `json:"release"`
	Dist    string `json:"dist"`
}

// ParseStore parses a single Sentry event JSON body (the /store
// shape) into a Report.
func ParseStore(data []byte) (*Report, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, ErrMalformedJSON
	}
	return fromRaw(&raw)
}

func fromRaw(raw *rawEvent) (*Report, error) {
	eventID := normalizeEventID(raw.EventID)
	if eventID == "" {
		return nil, ErrMissingEventID
	}

	ts, err := parseTimestamp(raw.Timestamp)
	if err != nil {
		return nil, err
	}

	r := &Report{
		EventID:     eventID,
		Timestamp:   ts,
		Platform:    raw.Platform,
		Environment: raw.Environment,
		OSName:      raw.Contexts.OS.Name,
		OSVersion:   raw.Contexts.OS.Version,

		Manufacturer: raw.Contexts.Device.Manufacturer,
		Brand:        raw.Contexts.Device.Brand,
		Model:        firstNonEmpty(raw.Contexts.Device.Model, raw.Contexts.Device.ModelID),
		Chipset:      raw.Contexts.Device.Chipset,

		LocaleCode:     firstNonEmpty(raw.Contexts.Culture.Locale, raw.Contexts.Device.Locale),
		Timezone:       firstNonEmpty(raw.Contexts.Culture.Timezone, raw.Contexts.Device.Timezone),
		ConnectionType: raw.Contexts.Device.ConnectionType,
		Orientation:    raw.Contexts.Device.Orientation,

		UserID: firstNonEmpty(raw.User.ID, raw.User.Username, raw.User.Email),
	}

	relName, relVersion, relBuild := parseRelease(raw.Release)
	r.AppName = firstNonEmpty(raw.Contexts.App.AppName, raw.Contexts.App.AppIdentifier, relName)
	r.AppVersion = firstNonEmpty(raw.Contexts.App.AppVersion, relVersion)
	r.AppBuild = firstNonEmpty(raw.Contexts.App.AppBuild, raw.Dist, relBuild)

	if tags, ok := raw.Tags.(map[string]interface{}); ok {
		if v, ok := tags["orientation"].(string); ok && r.Orientation == "" {
			r.Orientation = v
		}
		if v, ok := tags["connection_type"].(string); ok && r.ConnectionType == "" {
			r.ConnectionType = v
		}
	}

	r.DeviceSpecs = DeviceSpecs{
		ScreenWidth:    raw.Contexts.Device.ScreenWidthPixels,
		ScreenHeight:   raw.Contexts.Device.ScreenHeightPixels,
		ScreenDensity:  raw.Contexts.Device.ScreenDensity,
		ScreenDPI:      raw.Contexts.Device.ScreenDPI,
		ProcessorCount: raw.Contexts.Device.ProcessorCount,
		MemorySize:     raw.Contexts.Device.MemorySize,
		Archs:          encodeArchs(raw.Contexts.Device.Archs, raw.Contexts.Device.Arch),
	}

	if len(raw.Exception.Values) > 0 {
		ex := raw.Exception.Values[0]
		r.ExceptionType = ex.Type
		r.ExceptionMessage = ex.Value
		r.Frames = ex.Stacktrace.Frames
	}

	return r, nil
}

func encodeArchs(archs []string, single string) *string {
	if len(archs) == 0 && single != "" {
		archs = []string{single}
	}
	if len(archs) == 0 {
		return nil
	}
	b, err := json.Marshal(archs)
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

// parseRelease splits a Sentry release string of the form
// "identifier@version+build" the way original_source's
// parse_release does.
func parseRelease(release string) (name, version, build string) {
	if release == "" {
		return "", "", ""
	}
	idPart, rest, ok := strings.Cut(release, "@")
	if !ok {
		return "", "", ""
	}
	ver, bld, hasBuild := strings.Cut(rest, "+")
	if !hasBuild {
		return idPart, rest, ""
	}
	return idPart, ver, bld
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// NormalizeEventID strips dashes and lowercases an event id, the same
// normalization ParseStore and ParseEnvelope apply internally. Exported
// so the ingest handler can normalize an id it peeks at before the
// full parse runs.
func NormalizeEventID(id string) string {
	return normalizeEventID(id)
}

// normalizeEventID strips dashes and lowercases, per spec.md §4.4
// ("32 hex lowercase").
func normalizeEventID(id string) string {
	id = strings.ToLower(strings.ReplaceAll(id, "-", ""))
	return id
}

// parseTimestamp accepts either a JSON number (seconds since epoch) or
// an ISO-8601 string.
func parseTimestamp(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, ErrMissingTimestamp
	}

	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return int64(asNumber), nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil && asString != "" {
		if t, err := time.Parse(time.RFC3339, asString); err == nil {
			return t.Unix(), nil
		}
		if t, err := time.Parse(time.RFC3339Nano, asString); err == nil {
			return t.Unix(), nil
		}
		if f, err := strconv.ParseFloat(asString, 64); err == nil {
			return int64(f), nil
		}
	}

	return 0, ErrMissingTimestamp
}
