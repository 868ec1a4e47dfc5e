package fixtures

import (
	"sync"
	"testing"

	"gopkg.in/dnaeon/go-vcr.v4/pkg/recorder"

	"busybeaver/pkg/testutil/vcr"
)

var (
	vcrOnce   sync.Once
	vcrConfig vcr.Config
)

// VCRConfig is the process-wide recorder configuration. Authorization
// headers are written to cassettes as DUMMY.
func VCRConfig() vcr.Config {
	vcrOnce.Do(func() {
		vcrConfig = vcr.Config{
			FilterHeaders: []vcr.HeaderFilter{{Name: "authorization", Replacement: "DUMMY"}},
			Mode:          vcr.ModeFromEnv(),
			CassetteDir:   "testdata/cassettes",
		}
	})
	cfg := vcrConfig
	cfg.FilterHeaders = append([]vcr.HeaderFilter(nil), vcrConfig.FilterHeaders...)
	return cfg
}

// Cassette opens the recorder for the running test, named after it, and
// stops it when the test ends, which saves a recording.
func Cassette(tb testing.TB) *recorder.Recorder {
	tb.Helper()
	rec, err := vcr.New(tb.Name(), VCRConfig())
	if err != nil {
		fail(tb, "vcr", err)
		return nil
	}
	tb.Cleanup(func() {
		if err := rec.Stop(); err != nil {
			tb.Errorf("fixture vcr teardown: %v", err)
		}
	})
	return rec
}
