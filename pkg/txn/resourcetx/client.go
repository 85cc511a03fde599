package resourcetx

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/marcodd23/go-graph-tx/pkg/configmgr"
	"github.com/marcodd23/go-graph-tx/pkg/txn"
	"github.com/pkg/errors"
)

// ClientConfig - parameters of the HTTP transactional endpoint.
type ClientConfig struct {
	BaseUrl  string
	Database string
	Username string
	Password string
	// Timeout bounds every request; the deadline of the request ctx wins when it is sooner.
	Timeout time.Duration
	// Headers are sent with every request, before the transaction metadata.
	Headers map[string]string
}

// ClientConfigFrom maps the http section of the graph configuration.
func ClientConfigFrom(cfg *configmgr.GraphConfig) ClientConfig {
	c := ClientConfig{Database: cfg.Database, Headers: cfg.DefaultHeaders}
	if cfg.Http != nil {
		c.BaseUrl = cfg.Http.BaseUrl
		c.Username = cfg.Http.Username
		c.Password = cfg.Http.Password
		c.Timeout = cfg.Http.Timeout
	}

	return c
}

// Client speaks the transaction resource protocol:
//
//	POST   {base}/db/{db}/tx              begin, 201 + commit url
//	POST   {base}/db/{db}/tx/{id}         run statements (none: keep alive)
//	POST   {base}/db/{db}/tx/{id}/commit  commit
//	DELETE {base}/db/{db}/tx/{id}         rollback
type Client struct {
	http   *fiber.Client
	config ClientConfig
}

// NewClient - client constructor.
func NewClient(config ClientConfig) *Client {
	config.BaseUrl = strings.TrimSuffix(config.BaseUrl, "/")

	return &Client{
		http: &fiber.Client{
			JSONEncoder: json.Marshal,
			JSONDecoder: json.Unmarshal,
		},
		config: config,
	}
}

// ServerError is one entry of the errors array of a response.
type ServerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ServerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type statementPayload struct {
	Statement  string         `json:"statement"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

type requestPayload struct {
	Statements []statementPayload `json:"statements"`
}

type resultPayload struct {
	Columns []string `json:"columns"`
	Data    []struct {
		Row []any `json:"row"`
	} `json:"data"`
}

type responsePayload struct {
	Commit  string          `json:"commit"`
	Results []resultPayload `json:"results"`
	Errors  []ServerError   `json:"errors"`
}

// Begin opens a transaction resource and returns its server issued id.
func (c *Client) Begin(ctx context.Context, metadata map[string]string) (string, error) {
	resp, err := c.do(ctx, fiber.MethodPost, c.txUrl(""), metadata, &requestPayload{Statements: []statementPayload{}}, fiber.StatusCreated)
	if err != nil {
		return "", errors.Wrap(err, "error opening transaction resource")
	}

	id, err := resourceIdFromCommitUrl(resp.Commit)
	if err != nil {
		return "", err
	}

	return id, nil
}

// Run executes statements inside the transaction resource, one result per statement.
func (c *Client) Run(ctx context.Context, resourceId string, metadata map[string]string, statements ...txn.Statement) ([]*txn.Result, error) {
	payload := &requestPayload{Statements: make([]statementPayload, 0, len(statements))}
	for _, s := range statements {
		payload.Statements = append(payload.Statements, statementPayload{Statement: s.Text, Parameters: s.Parameters})
	}

	resp, err := c.do(ctx, fiber.MethodPost, c.txUrl(resourceId), metadata, payload, fiber.StatusOK)
	if err != nil {
		return nil, errors.Wrapf(err, "error running statements on transaction resource %s", resourceId)
	}

	return toResults(resp.Results), nil
}

// KeepAlive resets the expiry of the transaction resource.
func (c *Client) KeepAlive(ctx context.Context, resourceId string, metadata map[string]string) error {
	_, err := c.Run(ctx, resourceId, metadata)
	return err
}

func (c *Client) Commit(ctx context.Context, resourceId string, metadata map[string]string) error {
	_, err := c.do(ctx, fiber.MethodPost, c.txUrl(resourceId)+"/commit", metadata, &requestPayload{Statements: []statementPayload{}}, fiber.StatusOK)
	return errors.Wrapf(err, "error committing transaction resource %s", resourceId)
}

func (c *Client) Rollback(ctx context.Context, resourceId string, metadata map[string]string) error {
	_, err := c.do(ctx, fiber.MethodDelete, c.txUrl(resourceId), metadata, nil, fiber.StatusOK)
	return errors.Wrapf(err, "error rolling back transaction resource %s", resourceId)
}

func (c *Client) txUrl(resourceId string) string {
	u := fmt.Sprintf("%s/db/%s/tx", c.config.BaseUrl, url.PathEscape(c.config.Database))
	if resourceId != "" {
		u += "/" + url.PathEscape(resourceId)
	}

	return u
}

type agentResponse struct {
	code int
	body []byte
	errs []error
}

// do issues one request and decodes its response. It returns as soon as ctx is done, even
// with the request in flight.
func (c *Client) do(ctx context.Context, method, target string, metadata map[string]string, payload *requestPayload, expected int) (*responsePayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	var agent *fiber.Agent
	switch method {
	case fiber.MethodDelete:
		agent = c.http.Delete(target)
	default:
		agent = c.http.Post(target)
	}

	agent.Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON)
	for k, v := range c.config.Headers {
		agent.Set(k, v)
	}
	for k, v := range metadata {
		agent.Set(k, v)
	}
	if c.config.Username != "" {
		agent.BasicAuth(c.config.Username, c.config.Password)
	}
	if payload != nil {
		agent.JSON(payload)
	}
	if timeout := c.timeout(ctx); timeout > 0 {
		agent.Timeout(timeout)
	}

	// the agent has no ctx of its own: a cancellation returns at once and the request is
	// left to finish within its timeout
	done := make(chan agentResponse, 1)
	go func() {
		code, body, errs := agent.Bytes()
		done <- agentResponse{code: code, body: body, errs: errs}
	}()

	var res agentResponse
	select {
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "%s %s", method, target)
	case res = <-done:
	}

	code, body := res.code, res.body
	if len(res.errs) > 0 {
		return nil, errors.Wrapf(res.errs[0], "%s %s", method, target)
	}

	var resp responsePayload
	if len(body) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, errors.Wrapf(err, "%s %s: invalid response body (status %d)", method, target, code)
		}
	}

	if len(resp.Errors) > 0 {
		return nil, errors.WithStack(resp.Errors[0])
	}
	if code != expected {
		return nil, errors.Errorf("%s %s: unexpected status %d", method, target, code)
	}

	return &resp, nil
}

func (c *Client) timeout(ctx context.Context) time.Duration {
	timeout := c.config.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}

	// an expired deadline still yields a positive timeout so the request fails instead of waiting forever
	if timeout < 0 {
		return time.Nanosecond
	}

	return timeout
}

func resourceIdFromCommitUrl(commitUrl string) (string, error) {
	u, err := url.Parse(commitUrl)
	if err != nil || !strings.HasSuffix(u.Path, "/commit") {
		return "", errors.Errorf("malformed commit url %q", commitUrl)
	}

	path := strings.TrimSuffix(u.Path, "/commit")
	id := path[strings.LastIndex(path, "/")+1:]
	if id == "" || id == "tx" {
		return "", errors.Errorf("malformed commit url %q", commitUrl)
	}

	return id, nil
}

func toResults(payloads []resultPayload) []*txn.Result {
	results := make([]*txn.Result, 0, len(payloads))
	for _, p := range payloads {
		r := &txn.Result{Columns: p.Columns, Rows: make([][]any, 0, len(p.Data))}
		for _, d := range p.Data {
			r.Rows = append(r.Rows, d.Row)
		}
		results = append(results, r)
	}

	return results
}
