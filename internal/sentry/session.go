package sentry

import "encoding/json"

// SentrySession is a parsed session-update item, ported from
// original_source's session update handling. Status transitions (a
// terminal exited/crashed/abnormal status never reverts) are enforced
// by the store, not here.
type SentrySession struct {
	SessionID   string
	Init        bool
	Status      string
	Started     int64
	Duration    float64
	Errors      int
	Release     string
	Environment string
	UserID      string
}

type rawSession struct {
	SID       string  `json:"sid"`
	Init      bool    `json:"init"`
	Status    string  `json:"status"`
	Started   json.RawMessage `json:"started"`
	Duration  float64 `json:"duration"`
	Errors    int     `json:"errors"`
	Attrs     struct {
		UserAgent   string `json:"user_agent"`
		Release     string `json:"release"`
		Environment string `json:"environment"`
	} `json:"attrs"`
	DID string `json:"did"`
}

func parseSession(data []byte) (*SentrySession, error) {
	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, ErrMalformedJSON
	}
	if raw.SID == "" {
		return nil, ErrMissingEventID
	}

	started, err := parseTimestamp(raw.Started)
	if err != nil {
		return nil, ErrMissingTimestamp
	}

	return &SentrySession{
		SessionID:   raw.SID,
		Init:        raw.Init,
		Status:      raw.Status,
		Started:     started,
		Duration:    raw.Duration,
		Errors:      raw.Errors,
		Release:     raw.Attrs.Release,
		Environment: raw.Attrs.Environment,
		UserID:      raw.DID,
	}, nil
}
