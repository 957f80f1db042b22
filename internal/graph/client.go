package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
)

// ConnectivityError wraps authentication and network failures talking to the
// graph store, distinct from query-level failures.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string { return fmt.Sprintf("graph connectivity: %v", e.Err) }
func (e *ConnectivityError) Unwrap() error { return e.Err }

// QueryError wraps a failure executing a single query.
type QueryError struct {
	Err error
}

func (e *QueryError) Error() string { return fmt.Sprintf("graph query: %v", e.Err) }
func (e *QueryError) Unwrap() error { return e.Err }

// ErrProcedureMissing indicates the server lacks a procedure the query
// called (e.g. a MAGE module is not loaded).
var ErrProcedureMissing = errors.New("graph procedure missing")

// Client is a thin Bolt adapter over Memgraph. Calls are independent; the
// only multi-row write the core issues is a single UNWIND batch. Connections
// are pooled by the driver.
type Client struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// Connect opens a pooled Bolt driver and verifies connectivity.
func Connect(ctx context.Context, url, user, password string, logger *zap.Logger) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(url, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, &ConnectivityError{Err: err}
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, &ConnectivityError{Err: err}
	}
	return &Client{driver: driver, logger: logger}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// Ping verifies the store is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.driver.VerifyConnectivity(ctx); err != nil {
		return &ConnectivityError{Err: err}
	}
	return nil
}

// RunRead executes a read query and returns one map per record.
func (c *Client) RunRead(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	return c.run(ctx, neo4j.AccessModeRead, query, params)
}

// RunWrite executes a write query and returns one map per record.
func (c *Client) RunWrite(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	return c.run(ctx, neo4j.AccessModeWrite, query, params)
}

func (c *Client) run(ctx context.Context, mode neo4j.AccessMode, query string, params map[string]any) ([]map[string]any, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode})
	defer func() { _ = session.Close(ctx) }()

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, classify(err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return nil, classify(err)
	}

	rows := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rec.AsMap())
	}
	return rows, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if neo4j.IsConnectivityError(err) {
		return &ConnectivityError{Err: err}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "no procedure") || strings.Contains(msg, "doesn't exist") && strings.Contains(msg, "procedure") {
		return fmt.Errorf("%w: %v", ErrProcedureMissing, err)
	}
	return &QueryError{Err: err}
}
