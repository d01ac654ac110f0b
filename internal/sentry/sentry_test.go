package sentry

import (
	"errors"
	"strings"
	"testing"
)

const sampleEvent = `{
  "event_id": "AAAA-BBBB-CCCC-DDDD",
  "timestamp": 1700000000,
  "platform": "go",
  "environment": "production",
  "release": "com.example.app@1.2.3+45",
  "contexts": {
    "os": {"name": "Android", "version": "14"},
    "device": {
      "manufacturer": "Google",
      "model": "Pixel 8",
      "archs": ["arm64-v8a"],
      "screen_width_pixels": 1080,
      "screen_height_pixels": 2400,
      "processor_count": 8
    },
    "culture": {"locale": "en-US", "timezone": "America/New_York"}
  },
  "user": {"id": "user-1"},
  "exception": {
    "values": [
      {"type": "NullPointerException", "value": "boom\nmore detail",
       "stacktrace": {"frames": [{"function": "main", "module": "app", "in_app": true}]}}
    ]
  }
}`

func TestParseStoreBasic(t *testing.T) {
	r, err := ParseStore([]byte(sampleEvent))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.EventID != "aaaabbbbccccdddd" {
		t.Fatalf("unexpected event id: %s", r.EventID)
	}
	if r.AppName != "com.example.app" || r.AppVersion != "1.2.3" || r.AppBuild != "45" {
		t.Fatalf("unexpected release parse: %+v", r)
	}
	if r.Manufacturer != "Google" || r.Model != "Pixel 8" {
		t.Fatalf("unexpected device: %+v", r)
	}
	if r.DeviceSpecs.IsZero() {
		t.Fatal("expected non-zero device specs")
	}
	if r.ExceptionType != "NullPointerException" {
		t.Fatalf("unexpected exception type: %s", r.ExceptionType)
	}
	if len(r.Frames) != 1 || !r.Frames[0].InApp {
		t.Fatalf("unexpected frames: %+v", r.Frames)
	}
}

func TestParseStoreMissingEventID(t *testing.T) {
	_, err := ParseStore([]byte(`{"timestamp": 1700000000}`))
	if !errors.Is(err, ErrMissingEventID) {
		t.Fatalf("expected ErrMissingEventID, got %v", err)
	}
}

func TestParseStoreMissingTimestamp(t *testing.T) {
	_, err := ParseStore([]byte(`{"event_id": "abcd"}`))
	if !errors.Is(err, ErrMissingTimestamp) {
		t.Fatalf("expected ErrMissingTimestamp, got %v", err)
	}
}

func TestParseStoreMalformedJSON(t *testing.T) {
	_, err := ParseStore([]byte(`not json`))
	if !errors.Is(err, ErrMalformedJSON) {
		t.Fatalf("expected ErrMalformedJSON, got %v", err)
	}
}

func TestParseEnvelopeWithEventItem(t *testing.T) {
	header := `{"event_id": "aaaabbbbccccdddd0000000000000000"}` + "\n"
	itemHeader := `{"type": "event"}` + "\n"
	// Without "length" the payload ends at the next newline, so the
	// event body goes on a single line.
	body := strings.ReplaceAll(sampleEvent, "\n", "") + "\n"
	data := []byte(header + itemHeader + body)

	env, err := ParseEnvelope(data)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if env.Event == nil {
		t.Fatal("expected event item")
	}
	if env.Event.EventID != "aaaabbbbccccdddd" {
		t.Fatalf("unexpected event id: %s", env.Event.EventID)
	}
}

func TestParseEnvelopeWithLengthPrefixedItem(t *testing.T) {
	header := `{"event_id": "aaaabbbbccccdddd0000000000000000"}` + "\n"
	payload := sampleEvent
	itemHeader := `{"type": "event", "length": ` + itoa(len(payload)) + `}` + "\n"
	data := []byte(header + itemHeader + payload + "\n")

	env, err := ParseEnvelope(data)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if env.Event == nil {
		t.Fatal("expected event item")
	}
}

func TestParseEnvelopeWithSessionItem(t *testing.T) {
	header := `{}` + "\n"
	itemHeader := `{"type": "session"}` + "\n"
	session := `{"sid": "sess-1", "status": "ok", "started": 1700000000, "duration": 12.5, "errors": 0}` + "\n"
	data := []byte(header + itemHeader + session)

	env, err := ParseEnvelope(data)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if len(env.Sessions) != 1 || env.Sessions[0].SessionID != "sess-1" {
		t.Fatalf("unexpected sessions: %+v", env.Sessions)
	}
}

func TestParseSessionCarriesInitReleaseEnvironment(t *testing.T) {
	data := []byte(`{"sid": "sess-1", "init": true, "status": "ok", "started": 1700000000, "duration": 0, "errors": 0, "attrs": {"release": "myapp@1.2.3", "environment": "production"}}`)

	sess, err := parseSession(data)
	if err != nil {
		t.Fatalf("parse session: %v", err)
	}
	if !sess.Init {
		t.Fatal("expected init=true")
	}
	if sess.Release != "myapp@1.2.3" {
		t.Fatalf("unexpected release: %q", sess.Release)
	}
	if sess.Environment != "production" {
		t.Fatalf("unexpected environment: %q", sess.Environment)
	}
}

func TestParseEnvelopeCarriesHeaderFields(t *testing.T) {
	header := `{"event_id": "aaaabbbbccccdddd0000000000000000", "dsn": "https://key@host/1", "sdk": {"name": "sentry.java", "version": "6.0.0"}, "sent_at": "2023-11-14T22:13:20Z"}` + "\n"
	itemHeader := `{"type": "event"}` + "\n"
	body := strings.ReplaceAll(sampleEvent, "\n", "") + "\n"
	data := []byte(header + itemHeader + body)

	env, err := ParseEnvelope(data)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if env.Header.DSN != "https://key@host/1" {
		t.Fatalf("unexpected dsn: %q", env.Header.DSN)
	}
	if env.Header.SentAt != "2023-11-14T22:13:20Z" {
		t.Fatalf("unexpected sent_at: %q", env.Header.SentAt)
	}
	if env.Header.SDK == "" {
		t.Fatal("expected sdk to be carried through")
	}
}

func TestParseEnvelopeCollectsMultipleSessionItems(t *testing.T) {
	header := `{}` + "\n"
	item1 := `{"type": "session"}` + "\n"
	session1 := `{"sid": "sess-1", "status": "ok", "started": 1700000000, "duration": 12.5, "errors": 0}` + "\n"
	item2 := `{"type": "session"}` + "\n"
	session2 := `{"sid": "sess-2", "status": "exited", "started": 1700000100, "duration": 5, "errors": 1}` + "\n"
	data := []byte(header + item1 + session1 + item2 + session2)

	env, err := ParseEnvelope(data)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if len(env.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(env.Sessions))
	}
	if env.Sessions[0].SessionID != "sess-1" || env.Sessions[1].SessionID != "sess-2" {
		t.Fatalf("unexpected session order: %+v", env.Sessions)
	}
}

func TestParseEnvelopeSkipsUnknownItems(t *testing.T) {
	header := `{}` + "\n"
	itemHeader := `{"type": "attachment", "length": 5}` + "\n"
	data := []byte(header + itemHeader + "hello\n")

	_, err := ParseEnvelope(data)
	if !errors.Is(err, ErrUnsupportedEnvelope) {
		t.Fatalf("expected ErrUnsupportedEnvelope when no usable item present, got %v", err)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
