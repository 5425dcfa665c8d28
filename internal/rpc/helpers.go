package rpc

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dsf/internal/domain"
)

// MaxBodySize bounds a body loaded from a file.
const MaxBodySize = 1 << 20

// Duration is a time.Duration with human-readable text form ("10s", "1m30s").
type Duration time.Duration

// ParseDuration parses a human duration. A bare integer is read as seconds.
func ParseDuration(s string) (Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty duration", domain.ErrMalformed)
	}
	if d, err := time.ParseDuration(s); err == nil {
		return Duration(d), nil
	}
	if secs, err := strconv.ParseUint(s, 10, 32); err == nil {
		return Duration(time.Duration(secs) * time.Second), nil
	}
	return 0, fmt.Errorf("%w: duration %q", domain.ErrMalformed, s)
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ParseKeyValue splits "key:value". The value may itself contain colons.
func ParseKeyValue(s string) (MetadataEntry, error) {
	k, v, ok := strings.Cut(s, ":")
	if !ok {
		return MetadataEntry{}, fmt.Errorf("%w: expected key:value, got %q", domain.ErrMalformed, s)
	}
	k = strings.TrimSpace(k)
	if k == "" {
		return MetadataEntry{}, fmt.Errorf("%w: empty key in %q", domain.ErrMalformed, s)
	}
	return MetadataEntry{Key: k, Value: strings.TrimSpace(v)}, nil
}

// LoadBody reads a page body from a file.
func LoadBody(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load body: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("load body: %s is a directory", path)
	}
	if info.Size() > MaxBodySize {
		return nil, fmt.Errorf("load body: %s is larger than %d bytes", path, MaxBodySize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load body: %w", err)
	}
	return data, nil
}

// ResolveBody returns the publish body from inline data or the data file.
func (o PublishOptions) ResolveBody() ([]byte, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if o.DataFile != "" {
		return LoadBody(o.DataFile)
	}
	return o.Data, nil
}
