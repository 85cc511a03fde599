// Package neo4jdriver binds the session-backed transport to the official neo4j-go-driver.
package neo4jdriver

import (
	"context"

	"github.com/marcodd23/go-graph-tx/pkg/bookmark"
	"github.com/marcodd23/go-graph-tx/pkg/configmgr"
	"github.com/marcodd23/go-graph-tx/pkg/errorx"
	"github.com/marcodd23/go-graph-tx/pkg/logx"
	"github.com/marcodd23/go-graph-tx/pkg/txn"
	"github.com/marcodd23/go-graph-tx/pkg/txn/sessiontx"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/pkg/errors"
)

// Config - connection parameters of the bolt driver.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// ConfigFrom maps the bolt section of the graph configuration.
func ConfigFrom(cfg *configmgr.GraphConfig) Config {
	c := Config{Database: cfg.Database}
	if cfg.Bolt != nil {
		c.URI = cfg.Bolt.Uri
		c.Username = cfg.Bolt.Username
		c.Password = cfg.Bolt.Password
	}

	return c
}

// Driver implements sessiontx.Driver over a neo4j.DriverWithContext.
type Driver struct {
	driver neo4j.DriverWithContext
}

// New creates the driver and verifies the server is reachable.
func New(ctx context.Context, cfg Config) (*Driver, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, errorx.NewGeneralErrorWrapper(err, "unable to create bolt driver for %s", cfg.URI)
	}

	if err = driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, errorx.NewGeneralErrorWrapper(err, "unable to reach %s", cfg.URI)
	}

	logx.GetLogger().LogInfo(ctx, "bolt driver connected to "+cfg.URI)

	return &Driver{driver: driver}, nil
}

// Wrap adapts an already built neo4j driver.
func Wrap(driver neo4j.DriverWithContext) *Driver {
	return &Driver{driver: driver}
}

func (d *Driver) NewSession(ctx context.Context, config sessiontx.SessionConfig) (sessiontx.Session, error) {
	session := d.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   accessMode(config.AccessMode),
		Bookmarks:    neo4j.BookmarksFromRawValues(config.Bookmarks.Tokens()...),
		DatabaseName: config.Database,
	})

	return &boltSession{session: session}, nil
}

func (d *Driver) Close(ctx context.Context) error {
	return errors.WithStack(d.driver.Close(ctx))
}

func accessMode(mode txn.AccessMode) neo4j.AccessMode {
	if mode == txn.AccessModeRead {
		return neo4j.AccessModeRead
	}

	return neo4j.AccessModeWrite
}

type boltSession struct {
	session neo4j.SessionWithContext
}

func (s *boltSession) BeginTransaction(ctx context.Context) (sessiontx.DriverTransaction, error) {
	tx, err := s.session.BeginTransaction(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &transaction{tx: tx}, nil
}

func (s *boltSession) LastBookmarks() bookmark.Set {
	return bookmark.NewSet(s.session.LastBookmarks()...)
}

func (s *boltSession) Close(ctx context.Context) error {
	return errors.WithStack(s.session.Close(ctx))
}

type transaction struct {
	tx neo4j.ExplicitTransaction
}

func (t *transaction) Run(ctx context.Context, statement txn.Statement) (*txn.Result, error) {
	res, err := t.tx.Run(ctx, statement.Text, statement.Parameters)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	keys, err := res.Keys()
	if err != nil {
		return nil, errors.WithStack(err)
	}

	records, err := res.Collect(ctx)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return toResult(keys, records), nil
}

func (t *transaction) Commit(ctx context.Context) error {
	return errors.WithStack(t.tx.Commit(ctx))
}

func (t *transaction) Rollback(ctx context.Context) error {
	return errors.WithStack(t.tx.Rollback(ctx))
}

func (t *transaction) Close(ctx context.Context) error {
	return errors.WithStack(t.tx.Close(ctx))
}

func toResult(keys []string, records []*neo4j.Record) *txn.Result {
	result := &txn.Result{Columns: keys, Rows: make([][]any, 0, len(records))}
	for _, record := range records {
		row := make([]any, len(keys))
		for i, key := range keys {
			if v, ok := record.Get(key); ok {
				row[i] = v
			}
		}
		result.Rows = append(result.Rows, row)
	}

	return result
}
