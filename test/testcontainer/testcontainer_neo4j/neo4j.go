package testcontainer_neo4j

import (
	"context"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/marcodd23/go-graph-tx/pkg/configmgr"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/neo4j"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	neo4jContainerImage = "docker.io/neo4j:5"
	neo4jHttpPort       = "7474/tcp"

	AdminUser     = "neo4j"
	AdminPassword = "password-for-tests"
	DefaultDbName = "neo4j"
)

// Neo4jContainer represents the neo4j Container type used in the module.
type Neo4jContainer struct {
	Container   *neo4j.Neo4jContainer
	BoltUrl     string
	HttpBaseUrl string
	MappedHttp  nat.Port
	Host        string
	DbName      string
	User        string
	Password    string
}

// StartNeo4jContainer - starts a single neo4j server with both bolt and http connectors and
// terminates it when the test ends.
func StartNeo4jContainer(ctx context.Context, t *testing.T) *Neo4jContainer {
	t.Helper()

	c, err := neo4j.Run(ctx,
		neo4jContainerImage,
		neo4j.WithAdminPassword(AdminPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Started.").WithStartupTimeout(90*time.Second)),
	)
	require.NoError(t, err)
	require.NotNil(t, c)

	t.Cleanup(func() {
		if err := c.Terminate(context.Background()); err != nil {
			log.Printf("unable to terminate neo4j container: %v", err)
		}
	})

	boltUrl, err := c.BoltUrl(ctx)
	require.NoError(t, err)

	mappedHttp, err := c.MappedPort(ctx, neo4jHttpPort)
	require.NoError(t, err)

	host, err := c.Host(ctx)
	require.NoError(t, err)

	httpBaseUrl := fmt.Sprintf("http://%s:%s", host, mappedHttp.Port())
	log.Printf("Neo4j running at %s and %s", boltUrl, httpBaseUrl)

	return &Neo4jContainer{
		Container:   c,
		BoltUrl:     boltUrl,
		HttpBaseUrl: httpBaseUrl,
		MappedHttp:  mappedHttp,
		Host:        host,
		DbName:      DefaultDbName,
		User:        AdminUser,
		Password:    AdminPassword,
	}
}

// GraphConfig returns the graph configuration of transport pointing at the container.
func (c *Neo4jContainer) GraphConfig(transport string) *configmgr.GraphConfig {
	cfg := &configmgr.GraphConfig{Transport: transport, Database: c.DbName}
	switch transport {
	case configmgr.TransportSession:
		cfg.Bolt = &configmgr.BoltConfig{Uri: c.BoltUrl, Username: c.User, Password: c.Password}
	case configmgr.TransportResource:
		cfg.Http = &configmgr.HttpConfig{BaseUrl: c.HttpBaseUrl, Username: c.User, Password: c.Password, Timeout: 10 * time.Second}
	}

	return cfg
}
