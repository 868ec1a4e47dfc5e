package fixtures

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/suite"
	"gopkg.in/dnaeon/go-vcr.v4/pkg/recorder"

	"busybeaver/internal/app"
	"busybeaver/internal/kvstore"
	"busybeaver/internal/platform/database"
	"busybeaver/internal/queue"
	"busybeaver/pkg/testutil/containers"
)

// Main runs the package's tests, tears mod down and stops any test
// containers the run started. A teardown failure turns a passing run into a
// failing one.
func Main(m *testing.M, mod *Module) int {
	return finish(m.Run(), mod, os.Stderr)
}

var terminateContainers = func(ctx context.Context) error {
	return containers.GetManager().Terminate(ctx)
}

func finish(code int, mod *Module, stderr io.Writer) int {
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	err := errors.Join(mod.Teardown(), terminateContainers(ctx))
	if err == nil {
		return code
	}
	fmt.Fprintf(stderr, "fixtures: %v\n", err)
	if code == 0 {
		return 1
	}
	return code
}

// Suite is a testify suite with the fixtures wired to its lifecycle: the
// module lives for the suite, sessions for each test method.
//
//	type SyncSuite struct{ fixtures.Suite }
//
//	func TestSyncSuite(t *testing.T) {
//		suite.Run(t, &SyncSuite{Suite: fixtures.Suite{Options: fixtures.Options{Database: true}}})
//	}
type Suite struct {
	suite.Suite
	Options Options
	Module  *Module
}

func (s *Suite) SetupSuite() {
	s.Module = NewModule(s.Options)
}

func (s *Suite) TearDownSuite() {
	s.NoError(s.Module.Teardown())
}

func (s *Suite) App() *app.App { return s.Module.App(s.T()) }
func (s *Suite) Client() *Client { return s.Module.Client(s.T()) }
func (s *Suite) DB() *database.DB { return s.Module.DB(s.T()) }
func (s *Suite) RQ() *queue.Queue { return s.Module.RQ(s.T()) }
func (s *Suite) Session() *database.Session { return s.Module.Session(s.T()) }
func (s *Suite) KVStore() *kvstore.Adapter { return s.Module.KVStore(s.T()) }
func (s *Suite) Cassette() *recorder.Recorder { return Cassette(s.T()) }
