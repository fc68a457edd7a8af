package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/tarancss/linka/lib/config"
)

// operatorKey is the first well-known development account.
const operatorKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var escrowAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3") //nolint:gochecknoglobals // testdata

// mockRequest is a JSON-RPC request received by the mock node.
type mockRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// mockNode answers JSON-RPC calls from a table of results keyed by method. Raw transactions are decoded and kept so
// tests can inspect what was signed and sent.
type mockNode struct {
	mu      sync.Mutex
	results map[string]interface{}
	calls   []string
	sent    []*types.Transaction
}

func newMockNode() *mockNode {
	return &mockNode{results: map[string]interface{}{
		"eth_gasPrice":            "0x3b9aca00",
		"eth_getTransactionCount": "0x0",
		"eth_getCode":             "0x6080604052",
		"eth_estimateGas":         "0x186a0",
		"eth_blockNumber":         "0x10",
		"eth_chainId":             "0x2105",
	}}
}

func (n *mockNode) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	var req mockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.WriteHeader(http.StatusBadRequest)

		return
	}

	n.mu.Lock()
	n.calls = append(n.calls, req.Method)

	var sentHash string

	if req.Method == "eth_sendRawTransaction" && len(req.Params) == 1 {
		var raw string
		_ = json.Unmarshal(req.Params[0], &raw)

		tx := new(types.Transaction)
		if b, err := hexutil.Decode(raw); err == nil && tx.UnmarshalBinary(b) == nil {
			n.sent = append(n.sent, tx)
			sentHash = tx.Hash().Hex()
		}
	}

	res, ok := n.results[req.Method]
	if req.Method == "eth_sendRawTransaction" {
		res, ok = sentHash, true
	}

	// receipts always describe the last transaction sent
	if rec, isMap := res.(map[string]interface{}); isMap && req.Method == "eth_getTransactionReceipt" && len(n.sent) > 0 {
		rec["transactionHash"] = n.sent[len(n.sent)-1].Hash().Hex()
	}
	n.mu.Unlock()

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
	if ok {
		resp["result"] = res
	} else {
		resp["error"] = map[string]interface{}{"code": -32601, "message": "method " + req.Method + " not mocked"}
	}

	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(resp)
}

func (n *mockNode) set(method string, result interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.results[method] = result
}

func (n *mockNode) lastSent(t *testing.T) *types.Transaction {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()

	require.NotEmpty(t, n.sent, "no transaction was sent")

	return n.sent[len(n.sent)-1]
}

// startNode returns a client connected to a fresh mock node.
func startNode(t *testing.T) (*Client, *mockNode) {
	t.Helper()

	node := newMockNode()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	key, err := crypto.HexToECDSA(operatorKey)
	require.NoError(t, err)

	c, err := Dial(context.Background(), config.ChainConfig{Node: srv.URL, ChainID: 8453, Timeout: 5}, key)
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return c, node
}

func mockLog(addr common.Address, topics []common.Hash, data []byte) map[string]interface{} {
	ts := make([]string, len(topics))
	for i, tp := range topics {
		ts[i] = tp.Hex()
	}

	return map[string]interface{}{
		"address":          addr.Hex(),
		"topics":           ts,
		"data":             hexutil.Encode(data),
		"blockNumber":      "0x11",
		"transactionHash":  common.HexToHash("0x77").Hex(),
		"transactionIndex": "0x0",
		"blockHash":        common.HexToHash("0x99").Hex(),
		"logIndex":         "0x0",
		"removed":          false,
	}
}

func mockReceipt(status string, logs ...map[string]interface{}) map[string]interface{} {
	if logs == nil {
		logs = []map[string]interface{}{}
	}

	return map[string]interface{}{
		"type":              "0x0",
		"status":            status,
		"cumulativeGasUsed": "0x186a0",
		"logsBloom":         "0x" + strings.Repeat("0", 512),
		"logs":              logs,
		"transactionHash":   common.HexToHash("0x01").Hex(),
		"gasUsed":           "0x186a0",
		"effectiveGasPrice": "0x3b9aca00",
		"blockHash":         common.HexToHash("0x99").Hex(),
		"blockNumber":       "0x11",
		"transactionIndex":  "0x0",
	}
}
