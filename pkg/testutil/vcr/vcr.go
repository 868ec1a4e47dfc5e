// Package vcr configures go-vcr recorders for tests of outbound HTTP clients:
// one YAML cassette per test, replayed by default, with secret headers
// rewritten before a cassette is written.
package vcr

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/dnaeon/go-vcr.v4/pkg/cassette"
	"gopkg.in/dnaeon/go-vcr.v4/pkg/recorder"
)

// Mode selects whether a recorder talks to the network.
type Mode int

const (
	// ModeReplay serves only recorded interactions; a missing cassette is an
	// error.
	ModeReplay Mode = iota
	// ModeRecord always hits the network and overwrites the cassette.
	ModeRecord
	// ModeOnce replays an existing cassette and records a missing one.
	ModeOnce
)

// Errors surfaced by replaying recorders.
var (
	ErrNoInteraction = cassette.ErrInteractionNotFound
	ErrNoCassette    = cassette.ErrCassetteNotFound
)

// HeaderFilter replaces a request header's value before the cassette is
// saved. An empty Replacement drops the header.
type HeaderFilter struct {
	Name        string
	Replacement string
}

// Config is shared by every recorder in a test binary.
type Config struct {
	FilterHeaders []HeaderFilter
	Mode          Mode
	CassetteDir   string
	// RealTransport serves recording; nil means http.DefaultTransport.
	RealTransport http.RoundTripper
}

// ParseMode maps "replay", "record" and "once" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "replay", "none":
		return ModeReplay, nil
	case "record", "all":
		return ModeRecord, nil
	case "once":
		return ModeOnce, nil
	default:
		return ModeReplay, fmt.Errorf("vcr: unknown mode %q", s)
	}
}

// ModeFromEnv reads BUSYBEAVER_VCR_MODE, defaulting to replay.
func ModeFromEnv() Mode {
	m, err := ParseMode(os.Getenv("BUSYBEAVER_VCR_MODE"))
	if err != nil {
		return ModeReplay
	}
	return m
}

func (m Mode) recorderMode() recorder.Mode {
	switch m {
	case ModeRecord:
		return recorder.ModeRecordOnly
	case ModeOnce:
		return recorder.ModeRecordOnce
	default:
		return recorder.ModeReplayOnly
	}
}

// CassettePath maps a test name to its file under dir. Subtest separators
// become underscores.
func CassettePath(dir, name string) string {
	r := strings.NewReplacer("/", "_", " ", "_", ":", "_")
	return filepath.Join(dir, r.Replace(name)+".yaml")
}

// New opens the recorder for the cassette named after name under
// cfg.CassetteDir. The caller must Stop it to save a recording.
func New(name string, cfg Config) (*recorder.Recorder, error) {
	if cfg.CassetteDir == "" {
		cfg.CassetteDir = "testdata/cassettes"
	}
	opts := []recorder.Option{
		recorder.WithMode(cfg.Mode.recorderMode()),
		recorder.WithMatcher(matchRequest),
		recorder.WithSkipRequestLatency(true),
		recorder.WithHook(filterHook(cfg.FilterHeaders), recorder.BeforeSaveHook),
	}
	if cfg.RealTransport != nil {
		opts = append(opts, recorder.WithRealTransport(cfg.RealTransport))
	}

	path := strings.TrimSuffix(CassettePath(cfg.CassetteDir, name), ".yaml")
	rec, err := recorder.New(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("vcr: open cassette for %s: %w", name, err)
	}
	return rec, nil
}

// filterHook rewrites the recorded request headers named in filters. The live
// request is untouched; only what is written to disk changes.
func filterHook(filters []HeaderFilter) recorder.HookFunc {
	return func(i *cassette.Interaction) error {
		for _, f := range filters {
			key := http.CanonicalHeaderKey(f.Name)
			if _, ok := i.Request.Headers[key]; !ok {
				continue
			}
			if f.Replacement == "" {
				i.Request.Headers.Del(key)
				continue
			}
			i.Request.Headers.Set(key, f.Replacement)
		}
		return nil
	}
}

// matchRequest pairs a live request with a recorded one on method and URL,
// and on body when one was recorded. Headers are ignored so filtered values
// never prevent a match.
func matchRequest(r *http.Request, i cassette.Request) bool {
	if r.Method != i.Method || r.URL.String() != i.URL {
		return false
	}
	if i.Body == "" {
		return true
	}
	body, err := peekBody(r)
	return err == nil && body == i.Body
}

func peekBody(r *http.Request) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return "", fmt.Errorf("vcr: read request body: %w", err)
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	return string(raw), nil
}
