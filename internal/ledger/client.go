package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bloodtrace/internal/platform/metrics"
	"bloodtrace/pkg/domain"
	dErrors "bloodtrace/pkg/domain-errors"
	"bloodtrace/pkg/platform/circuit"
)

// Client talks JSON-RPC over HTTP to the remote ledger service.
type Client struct {
	url     string
	http    *http.Client
	timeout time.Duration
	metrics *metrics.Metrics
	tracer  trace.Tracer
	breaker *circuit.Breaker
	nextID  atomic.Uint64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithMetrics attaches call instrumentation.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithTimeout bounds each individual remote call.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient overrides the underlying transport.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.http = h }
}

// NewClient creates a ledger client for the given RPC endpoint.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:     url,
		http:    &http.Client{},
		timeout: 15 * time.Second,
		tracer:  otel.Tracer("bloodtrace/ledger"),
		breaker: circuit.New("ledger", circuit.WithFailureThreshold(5), circuit.WithCooldown(30*time.Second)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type callParams struct {
	Contract string   `json:"contract"`
	Method   string   `json:"method"`
	Args     []string `json:"args"`
	From     string   `json:"from,omitempty"`
	Value    string   `json:"value,omitempty"`
}

type eventsParams struct {
	Contract  string            `json:"contract"`
	Event     string            `json:"event"`
	Topics    map[string]string `json:"topics,omitempty"`
	FromBlock uint64            `json:"from_block"`
	ToBlock   uint64            `json:"to_block"`
}

type rawEventWire struct {
	Name        string            `json:"name"`
	Contract    string            `json:"contract"`
	BlockNumber uint64            `json:"block_number"`
	TxIndex     uint64            `json:"tx_index"`
	LogIndex    uint64            `json:"log_index"`
	TxHash      string            `json:"tx_hash"`
	Timestamp   int64             `json:"timestamp"`
	Args        map[string]string `json:"args"`
}

// Call implements Gateway. A timeout here means unknown outcome: the remote
// transition may or may not have been applied, so the error keeps the
// distinction (CodeTimeout, not a rejection code).
func (c *Client) Call(ctx context.Context, contract domain.Address, method string, args []string, opts CallOpts) (Receipt, error) {
	params := callParams{
		Contract: contract.String(),
		Method:   method,
		Args:     args,
		From:     opts.From.String(),
	}
	if opts.Value != nil {
		params.Value = opts.Value.String()
	}

	var receipt Receipt
	err := c.do(ctx, "ledger_call", method, params, &receipt)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeTimeout) {
			return Receipt{}, dErrors.Wrap(err, dErrors.CodeTimeout,
				fmt.Sprintf("no receipt for %s: outcome unknown", method))
		}
		return Receipt{}, err
	}
	return receipt, nil
}

// Query implements Gateway.
func (c *Client) Query(ctx context.Context, contract domain.Address, method string, args ...string) ([]string, error) {
	params := callParams{Contract: contract.String(), Method: method, Args: args}
	var out []string
	if err := c.do(ctx, "ledger_query", method, params, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Events implements Gateway. CodeRangeTooLarge propagates to the Scanner,
// which is the only caller expected to handle it.
func (c *Client) Events(ctx context.Context, contract domain.Address, filter EventFilter, fromBlock, toBlock uint64) ([]RawEvent, error) {
	params := eventsParams{
		Contract:  contract.String(),
		Event:     filter.Name,
		Topics:    filter.Topics,
		FromBlock: fromBlock,
		ToBlock:   toBlock,
	}
	var wire []rawEventWire
	if err := c.do(ctx, "ledger_getEvents", filter.Name, params, &wire); err != nil {
		return nil, err
	}

	events := make([]RawEvent, 0, len(wire))
	for _, w := range wire {
		addr, err := domain.ParseAddress(w.Contract)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "event with malformed contract address")
		}
		events = append(events, RawEvent{
			Name:        w.Name,
			Contract:    addr,
			BlockNumber: w.BlockNumber,
			TxIndex:     w.TxIndex,
			LogIndex:    w.LogIndex,
			TxHash:      w.TxHash,
			Timestamp:   time.Unix(w.Timestamp, 0).UTC(),
			Args:        w.Args,
		})
	}
	return events, nil
}

// Height implements Gateway.
func (c *Client) Height(ctx context.Context) (uint64, error) {
	var out string
	if err := c.do(ctx, "ledger_blockNumber", "blockNumber", []string{}, &out); err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(out, 10, 64)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "malformed block number from ledger")
	}
	return n, nil
}

// ChainID implements Gateway.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	var out string
	if err := c.do(ctx, "ledger_chainId", "chainId", []string{}, &out); err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(out, 10, 64)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "malformed chain id from ledger")
	}
	return n, nil
}

func (c *Client) do(ctx context.Context, rpcMethod, label string, params, result any) error {
	ctx, span := c.tracer.Start(ctx, rpcMethod,
		trace.WithAttributes(attribute.String("ledger.method", label)))
	defer span.End()

	start := time.Now()
	outcome := "ok"
	defer func() {
		c.metrics.ObserveLedgerCall(label, outcome, time.Since(start))
	}()

	// Fail fast while the breaker is open; a timed-out dependency only gets
	// slower under sustained load.
	if c.breaker.IsOpen() {
		outcome = "circuit_open"
		return dErrors.New(dErrors.CodeConnectivity, "ledger circuit open")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  rpcMethod,
		Params:  params,
	})
	if err != nil {
		outcome = "error"
		return dErrors.Wrap(err, dErrors.CodeInternal, "marshal rpc request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		outcome = "error"
		return dErrors.Wrap(err, dErrors.CodeInternal, "build rpc request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		if ctx.Err() != nil {
			outcome = "timeout"
			return dErrors.Wrap(err, dErrors.CodeTimeout, "ledger call timed out")
		}
		outcome = "unreachable"
		return dErrors.Wrap(err, dErrors.CodeConnectivity, "ledger service unreachable")
	}
	defer resp.Body.Close()

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		c.breaker.RecordFailure()
		outcome = "error"
		return dErrors.Wrap(err, dErrors.CodeConnectivity, "malformed rpc response")
	}

	// A decodable response counts as healthy even when the call itself is
	// rejected: the dependency is up, the request was just refused.
	c.breaker.RecordSuccess()
	if rpcResp.Error != nil {
		outcome = "rejected"
		return mapRPCError(rpcResp.Error)
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			outcome = "error"
			return dErrors.Wrap(err, dErrors.CodeInternal, "decode rpc result")
		}
	}
	return nil
}

// mapRPCError classifies remote rejections. Authorization rejections are
// surfaced verbatim; precondition failures become conflicts the caller must
// re-fetch before retrying.
func mapRPCError(e *rpcError) error {
	msg := strings.ToLower(e.Message)
	switch {
	case e.Code == codeRangeTooLarge || strings.Contains(msg, "range too large") ||
		strings.Contains(msg, "exceeds block range"):
		return dErrors.New(dErrors.CodeRangeTooLarge, e.Message)
	case strings.Contains(msg, "user rejected") || strings.Contains(msg, "user denied") ||
		strings.Contains(msg, "not authorized") || strings.Contains(msg, "only owner") ||
		strings.Contains(msg, "access denied"):
		return dErrors.New(dErrors.CodeUnauthorized, e.Message)
	case strings.Contains(msg, "not for sale") || strings.Contains(msg, "already listed") ||
		strings.Contains(msg, "wrong owner") || strings.Contains(msg, "insufficient payment") ||
		strings.Contains(msg, "revert"):
		return dErrors.New(dErrors.CodeConflict, e.Message)
	default:
		return dErrors.New(dErrors.CodeInternal, e.Message)
	}
}

// codeRangeTooLarge is the remote service's error code for an event query
// wider than its per-call ceiling.
const codeRangeTooLarge = -32005
