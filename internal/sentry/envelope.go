package sentry

import (
	"bytes"
	"encoding/json"
)

// envelopeHeader is the first line of an envelope: event_id, dsn, sdk
// and sent_at, plus arbitrary metadata the parser does not care about.
type envelopeHeader struct {
	EventID string          `json:"event_id"`
	DSN     string          `json:"dsn"`
	SDK     json.RawMessage `json:"sdk"`
	SentAt  string          `json:"sent_at"`
}

type itemHeader struct {
	Type   string `json:"type"`
	Length *int   `json:"length"`
}

// EnvelopeHeader carries the envelope's header line for callers that
// want to log it; the digest worker does not branch on any of these
// fields, only the event_id found on individual items matters for
// storage.
type EnvelopeHeader struct {
	EventID string
	DSN     string
	SDK     string
	SentAt  string
}

// Envelope is the parsed result of a multi-item envelope body: the
// event item (if present) and every session item found. An envelope
// may carry an event, any number of session updates, or both —
// attachments and other item types are skipped. ParseEnvelope returns
// ErrUnsupportedEnvelope for an envelope with neither an event nor a
// session item.
type Envelope struct {
	Header   EnvelopeHeader
	Event    *Report
	Sessions []*SentrySession
}

// ParseEnvelope parses the newline-delimited envelope wire format:
// a header line, then repeated (item-header, payload) line pairs.
// An item with a "length" field is read as that many raw bytes
// (which may themselves contain embedded newlines); an item without
// "length" is read up to the next newline.
//
// This resolves the governing spec's envelope framing open question
// by following original_source/src/shared/parser/envelope.rs exactly:
// length-bearing items are sliced by byte count, not line count.
func ParseEnvelope(data []byte) (*Envelope, error) {
	lines := newLineReader(data)

	headerLine, ok := lines.next()
	if !ok {
		return nil, ErrUnsupportedEnvelope
	}
	var header envelopeHeader
	if err := json.Unmarshal(headerLine, &header); err != nil {
		return nil, ErrMalformedJSON
	}

	env := &Envelope{
		Header: EnvelopeHeader{
			EventID: header.EventID,
			DSN:     header.DSN,
			SDK:     string(header.SDK),
			SentAt:  header.SentAt,
		},
	}
	for {
		itemHeaderLine, ok := lines.next()
		if !ok {
			break
		}
		if len(bytes.TrimSpace(itemHeaderLine)) == 0 {
			continue
		}

		var ih itemHeader
		if err := json.Unmarshal(itemHeaderLine, &ih); err != nil {
			return nil, ErrMalformedJSON
		}

		var payload []byte
		if ih.Length != nil {
			payload, ok = lines.nextN(*ih.Length)
			if !ok {
				return nil, ErrUnsupportedEnvelope
			}
			lines.skipLineBreak()
		} else {
			payload, ok = lines.next()
			if !ok {
				return nil, ErrUnsupportedEnvelope
			}
		}

		switch ih.Type {
		case "event":
			var raw rawEvent
			if err := json.Unmarshal(payload, &raw); err != nil {
				return nil, ErrMalformedJSON
			}
			if raw.EventID == "" {
				raw.EventID = header.EventID
			}
			report, err := fromRaw(&raw)
			if err != nil {
				return nil, err
			}
			env.Event = report
		case "session":
			sess, err := parseSession(payload)
			if err != nil {
				return nil, err
			}
			env.Sessions = append(env.Sessions, sess)
		default:
			// attachments, transactions, client reports, etc: skipped.
		}
	}

	if env.Event == nil && len(env.Sessions) == 0 {
		return nil, ErrUnsupportedEnvelope
	}
	return env, nil
}

// lineReader walks a byte slice by newline or by explicit byte count.
type lineReader struct {
	data []byte
	pos  int
}

func newLineReader(data []byte) *lineReader {
	return &lineReader{data: data}
}

func (l *lineReader) next() ([]byte, bool) {
	if l.pos >= len(l.data) {
		return nil, false
	}
	idx := bytes.IndexByte(l.data[l.pos:], '\n')
	if idx < 0 {
		line := l.data[l.pos:]
		l.pos = len(l.data)
		return line, true
	}
	line := l.data[l.pos : l.pos+idx]
	l.pos += idx + 1
	return line, true
}

func (l *lineReader) nextN(n int) ([]byte, bool) {
	if n < 0 || l.pos+n > len(l.data) {
		return nil, false
	}
	out := l.data[l.pos : l.pos+n]
	l.pos += n
	return out, true
}

// skipLineBreak consumes a single trailing '\n' after a length-bearing
// item payload, if present.
func (l *lineReader) skipLineBreak() {
	if l.pos < len(l.data) && l.data[l.pos] == '\n' {
		l.pos++
	}
}
