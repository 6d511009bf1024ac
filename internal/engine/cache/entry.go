package cache

import (
	"encoding/json"
	"errors"
	"time"
)

// Entry is one cached value with its expiry.
type Entry struct {
	Key        string          `json:"key"`
	Data       json.RawMessage `json:"data"`
	CreatedAt  time.Time       `json:"created_at"`
	ExpiresAt  time.Time       `json:"expires_at"`
	TTLSeconds int             `json:"ttl_seconds"`
}

// NewEntry creates an entry created at now that lives for ttlSeconds.
func NewEntry(key string, data json.RawMessage, ttlSeconds int, now time.Time) *Entry {
	return &Entry{
		Key:        key,
		Data:       data,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Duration(ttlSeconds) * time.Second),
		TTLSeconds: ttlSeconds,
	}
}

// ExpiredAt reports whether the entry has expired at now.
func (e *Entry) ExpiredAt(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// AgeAt returns how old the entry is at now.
func (e *Entry) AgeAt(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// RemainingAt returns the time left before expiry, or 0.
func (e *Entry) RemainingAt(now time.Time) time.Duration {
	return max(e.ExpiresAt.Sub(now), 0)
}

// Decode unmarshals the cached data into v.
func (e *Entry) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// MarshalJSON writes timestamps as RFC3339 so cache files stay readable.
func (e *Entry) MarshalJSON() ([]byte, error) {
	type alias Entry
	return json.Marshal(&struct {
		*alias

		CreatedAt string `json:"created_at"`
		ExpiresAt string `json:"expires_at"`
	}{
		alias:     (*alias)(e),
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
		ExpiresAt: e.ExpiresAt.Format(time.RFC3339),
	})
}

// UnmarshalJSON parses the RFC3339 timestamps written by MarshalJSON.
func (e *Entry) UnmarshalJSON(data []byte) error {
	if e == nil {
		return errors.New("cannot unmarshal into nil Entry")
	}
	type alias Entry
	aux := &struct {
		*alias

		CreatedAt string `json:"created_at"`
		ExpiresAt string `json:"expires_at"`
	}{
		alias: (*alias)(e),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if e.CreatedAt, err = time.Parse(time.RFC3339, aux.CreatedAt); err != nil {
		return err
	}
	e.ExpiresAt, err = time.Parse(time.RFC3339, aux.ExpiresAt)
	return err
}
