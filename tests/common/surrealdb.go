// Package common holds shared test infrastructure: one SurrealDB
// testcontainer per test process, with per-test database isolation for
// the storage suites.
package common

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	surreal "github.com/surrealdb/surrealdb.go"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	surrealImage     = "surrealdb/surrealdb:v3.0.0"
	surrealNamespace = "foyer_test"
	surrealUser      = "root"
	surrealPass      = "root"
)

var (
	surrealOnce sync.Once
	surrealInst *SurrealInstance
	surrealErr  error
)

// SurrealInstance is the shared SurrealDB container for the test run.
type SurrealInstance struct {
	container testcontainers.Container
	endpoint  string
}

// StartSurrealDB starts the shared container on first use and fails the
// calling test if it cannot come up. Containers are expensive; every
// test in the process reuses this one and isolates itself through
// OpenDatabase.
func StartSurrealDB(t *testing.T) *SurrealInstance {
	t.Helper()

	surrealOnce.Do(func() {
		ctx := context.Background()

		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        surrealImage,
				ExposedPorts: []string{"8000/tcp"},
				Cmd:          []string{"start", "--user", surrealUser, "--pass", surrealPass},
				WaitingFor: wait.ForAll(
					wait.ForListeningPort("8000/tcp"),
					wait.ForLog("Started web server"),
				).WithDeadline(60 * time.Second),
			},
			Started: true,
		})
		if err != nil {
			surrealErr = fmt.Errorf("start SurrealDB container: %w", err)
			return
		}

		host, err := container.Host(ctx)
		if err != nil {
			container.Terminate(ctx)
			surrealErr = fmt.Errorf("get SurrealDB host: %w", err)
			return
		}
		mappedPort, err := container.MappedPort(ctx, "8000/tcp")
		if err != nil {
			container.Terminate(ctx)
			surrealErr = fmt.Errorf("get SurrealDB port: %w", err)
			return
		}

		surrealInst = &SurrealInstance{
			container: container,
			endpoint:  fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		}
	})

	if surrealErr != nil {
		t.Fatalf("SurrealDB container failed: %v", surrealErr)
	}
	return surrealInst
}

// Endpoint returns the WebSocket RPC address of the container.
func (s *SurrealInstance) Endpoint() string {
	return s.endpoint
}

// OpenDatabase connects to the shared container and selects a database
// named after the calling test, so suites never see each other's
// records. The connection is closed when the test finishes.
func (s *SurrealInstance) OpenDatabase(t *testing.T) *surreal.DB {
	t.Helper()
	ctx := context.Background()

	db, err := surreal.New(s.endpoint)
	if err != nil {
		t.Fatalf("connect to SurrealDB: %v", err)
	}
	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": surrealUser,
		"pass": surrealPass,
	}); err != nil {
		t.Fatalf("sign in to SurrealDB: %v", err)
	}

	// Subtests produce names like "Test/subtest"; SurrealDB rejects "/"
	// in database names. The nanosecond suffix keeps reruns apart.
	sanitized := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dbName := fmt.Sprintf("t_%s_%d", sanitized, time.Now().UnixNano()%100000)
	if err := db.Use(ctx, surrealNamespace, dbName); err != nil {
		t.Fatalf("select namespace/database: %v", err)
	}

	t.Cleanup(func() {
		db.Close(context.Background())
	})
	return db
}

// Cleanup terminates the container. Call from TestMain if needed.
func (s *SurrealInstance) Cleanup() {
	if s != nil && s.container != nil {
		s.container.Terminate(context.Background())
	}
}
