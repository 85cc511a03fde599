// Package fakegraph serves an in-memory transaction resource endpoint for tests.
package fakegraph

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/marcodd23/go-graph-tx/pkg/configmgr"
	"github.com/marcodd23/go-graph-tx/pkg/servermgr/fibersrv"
)

// Call is one request received by the server.
type Call struct {
	Method  string
	Path    string
	Headers map[string]string
	// Statements are the statement texts of the request body.
	Statements []string
}

// Tx is the server side state of one transaction resource.
type Tx struct {
	Id         string
	Statements []string
	Committed  bool
	RolledBack bool
}

type statement struct {
	Statement  string         `json:"statement"`
	Parameters map[string]any `json:"parameters"`
}

type request struct {
	Statements []statement `json:"statements"`
}

type serverError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Server - fake transaction resource endpoint.
type Server struct {
	URL string

	srv *fibersrv.FiberServer
	mu  sync.Mutex
	seq int
	txs map[string]*Tx

	calls []Call

	failBegin  bool
	failCommit bool
	failRun    bool
	latency    time.Duration
}

// Start serves on a random local port until the test ends.
func Start(t *testing.T) *Server {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to listen: %v", err)
	}

	s := &Server{
		URL: "http://" + ln.Addr().String(),
		srv: fibersrv.NewNamedFiberServer("fakegraph", &configmgr.ServerConfig{DisableStartupMessage: true}),
		txs: make(map[string]*Tx),
	}
	s.srv.Setup(context.Background(), s.routes)

	go func() {
		_ = s.srv.RunOnListener(ln)
	}()
	t.Cleanup(func() {
		s.srv.Shutdown(context.Background())
	})

	return s
}

func (s *Server) routes(app *fiber.App) {
	app.Use(s.record)
	app.Post("/db/:db/tx", s.begin)
	app.Post("/db/:db/tx/:id/commit", s.commit)
	app.Post("/db/:db/tx/:id", s.run)
	app.Delete("/db/:db/tx/:id", s.rollback)
}

func (s *Server) record(c *fiber.Ctx) error {
	var body request
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"errors": []serverError{{Code: "Neo.ClientError.Request.InvalidFormat", Message: err.Error()}}})
		}
	}

	call := Call{Method: strings.Clone(c.Method()), Path: strings.Clone(c.Path()), Headers: map[string]string{}}
	for k, v := range c.GetReqHeaders() {
		if len(v) > 0 {
			call.Headers[strings.Clone(k)] = strings.Clone(v[0])
		}
	}
	for _, st := range body.Statements {
		call.Statements = append(call.Statements, st.Statement)
	}
	c.Locals("statements", call.Statements)

	s.mu.Lock()
	s.calls = append(s.calls, call)
	latency := s.latency
	s.mu.Unlock()

	if latency > 0 {
		time.Sleep(latency)
	}

	return c.Next()
}

func (s *Server) begin(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failBegin {
		return failure(c, fiber.StatusServiceUnavailable, "Neo.TransientError.General.DatabaseUnavailable")
	}

	s.seq++
	id := strconv.Itoa(s.seq)
	s.txs[id] = &Tx{Id: id}

	commit := fmt.Sprintf("%s/db/%s/tx/%s/commit", s.URL, c.Params("db"), id)
	c.Set(fiber.HeaderLocation, fmt.Sprintf("%s/db/%s/tx/%s", s.URL, c.Params("db"), id))

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"commit": commit, "results": []any{}, "errors": []any{}})
}

func (s *Server) run(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, errResp := s.open(c)
	if errResp != nil {
		return errResp()
	}
	if s.failRun {
		return failure(c, fiber.StatusOK, "Neo.ClientError.Statement.SyntaxError")
	}

	statements, _ := c.Locals("statements").([]string)
	tx.Statements = append(tx.Statements, statements...)

	results := make([]fiber.Map, 0, len(statements))
	for _, st := range statements {
		results = append(results, fiber.Map{
			"columns": []string{"statement"},
			"data":    []fiber.Map{{"row": []any{st}}},
		})
	}

	return c.JSON(fiber.Map{"commit": c.BaseURL() + c.Path() + "/commit", "results": results, "errors": []any{}})
}

func (s *Server) commit(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, errResp := s.open(c)
	if errResp != nil {
		return errResp()
	}
	if s.failCommit {
		tx.RolledBack = true
		return failure(c, fiber.StatusOK, "Neo.TransientError.Transaction.DeadlockDetected")
	}

	statements, _ := c.Locals("statements").([]string)
	tx.Statements = append(tx.Statements, statements...)
	tx.Committed = true

	return c.JSON(fiber.Map{"results": []any{}, "errors": []any{}})
}

func (s *Server) rollback(c *fiber.Ctx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, errResp := s.open(c)
	if errResp != nil {
		return errResp()
	}
	tx.RolledBack = true

	return c.JSON(fiber.Map{"results": []any{}, "errors": []any{}})
}

func (s *Server) open(c *fiber.Ctx) (*Tx, func() error) {
	tx, ok := s.txs[c.Params("id")]
	if !ok || tx.Committed || tx.RolledBack {
		return nil, func() error {
			return failure(c, fiber.StatusNotFound, "Neo.ClientError.Transaction.TransactionNotFound")
		}
	}

	return tx, nil
}

func failure(c *fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{
		"results": []any{},
		"errors":  []serverError{{Code: code, Message: "injected failure"}},
	})
}

// Calls returns the requests received so far.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Call(nil), s.calls...)
}

// Tx returns a copy of the state of transaction id.
func (s *Server) Tx(id string) (Tx, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[id]
	if !ok {
		return Tx{}, false
	}

	out := *tx
	out.Statements = append([]string(nil), tx.Statements...)

	return out, true
}

// SetFailures makes the matching requests answer with a server error.
func (s *Server) SetFailures(begin, run, commit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failBegin, s.failRun, s.failCommit = begin, run, commit
}

// SetLatency delays every response by d.
func (s *Server) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latency = d
}
