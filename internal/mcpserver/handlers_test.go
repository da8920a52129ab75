package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	client := NewSentraClient(Config{APIURL: ts.URL, APIKey: "sk_test_key"})
	h := NewHandlers(client)
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ============================================================
// Client tests
// ============================================================

func TestClient_DoRequest_AuthHeader(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewSentraClient(Config{APIURL: ts.URL, APIKey: "sk_secret123"})
	_, err := client.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer sk_secret123", gotAuth)
}

func TestClient_DoRequest_NoKeyNoHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewSentraClient(Config{APIURL: ts.URL})
	_, err := client.GetStats(context.Background())
	require.NoError(t, err)
}

func TestClient_DoRequest_HTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "alert not found"})
	}))
	defer ts.Close()

	client := NewSentraClient(Config{APIURL: ts.URL})
	_, err := client.GetTransaction(context.Background(), "txn_missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "alert not found")
}

func TestClient_DoRequest_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewSentraClient(Config{APIURL: ts.URL})
	_, err := client.GetStats(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_ListAlerts_QueryParams(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pending", r.URL.Query().Get("status"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"alerts":[]}`))
	}))
	defer ts.Close()

	client := NewSentraClient(Config{APIURL: ts.URL})
	_, err := client.ListAlerts(context.Background(), "pending", 5)
	require.NoError(t, err)
}

func TestClient_ReviewAlert_RequestBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/v1/alerts/alert_1/status", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		var m map[string]string
		_ = json.Unmarshal(body, &m)
		assert.Equal(t, "resolved", m["status"])

		_ = json.NewEncoder(w).Encode(map[string]any{"id": "alert_1", "status": "resolved"})
	}))
	defer ts.Close()

	client := NewSentraClient(Config{APIURL: ts.URL})
	_, err := client.ReviewAlert(context.Background(), "alert_1", "resolved")
	require.NoError(t, err)
}

// ============================================================
// Handler: list_fraud_alerts
// ============================================================

func TestHandleListFraudAlerts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/alerts", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pending", r.URL.Query().Get("status"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"alerts": []map[string]any{
				{
					"id": "alert_1", "transactionId": "txn_1", "userId": "user_1",
					"riskScore": 72.5, "alertType": "critical", "status": "pending",
					"description": "Very large transaction amount (>$15,000)",
				},
				{
					"id": "alert_2", "transactionId": "txn_2", "userId": "user_2",
					"riskScore": 55.0, "alertType": "behavioral", "status": "pending",
				},
			},
			"count": 2,
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleListFraudAlerts(context.Background(), makeRequest(map[string]any{
		"status": "pending",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 alert(s)")
	assert.Contains(t, text, "alert_1")
	assert.Contains(t, text, "72.5")
	assert.Contains(t, text, "critical")
	assert.Contains(t, text, "Very large transaction amount")
}

func TestHandleListFraudAlerts_Empty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/alerts", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"alerts": []map[string]any{}, "count": 0})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleListFraudAlerts(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No alerts found")
}

func TestHandleListFraudAlerts_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/alerts", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "failed to list alerts"})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleListFraudAlerts(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "failed to list alerts")
}

// ============================================================
// Handler: get_transaction
// ============================================================

func TestHandleGetTransaction(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/transactions/txn_42", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"transactionId": "txn_42", "userId": "user_9", "amount": 18250.00,
			"merchant": "Jewelers Inc", "category": "luxury",
			"riskScore": 81.0, "isFraud": true,
			"fraudReason": "Very large transaction amount (>$15,000); New user - limited transaction history",
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetTransaction(context.Background(), makeRequest(map[string]any{
		"transaction_id": "txn_42",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "txn_42")
	assert.Contains(t, text, "$18250.00")
	assert.Contains(t, text, "Jewelers Inc")
	assert.Contains(t, text, "81.0")
	assert.Contains(t, text, "FRAUD")
	assert.Contains(t, text, "Very large transaction amount")
}

func TestHandleGetTransaction_MissingID(t *testing.T) {
	h := NewHandlers(NewSentraClient(Config{}))
	result, err := h.HandleGetTransaction(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "transaction_id is required")
}

// ============================================================
// Handler: get_fraud_stats
// ============================================================

func TestHandleGetFraudStats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalTransactions": 1234, "totalAmount": 98765.43,
			"fraudCount": 17, "highRiskCount": 42, "avgRiskScore": 23.7,
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetFraudStats(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "1234")
	assert.Contains(t, text, "17")
	assert.Contains(t, text, "42")
	assert.Contains(t, text, "23.7")
}

// ============================================================
// Handler: review_alert
// ============================================================

func TestHandleReviewAlert(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/alerts/alert_7/status", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "alert_7", "transactionId": "txn_7", "status": "false_positive", "riskScore": 61.0,
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleReviewAlert(context.Background(), makeRequest(map[string]any{
		"alert_id": "alert_7",
		"status":   "false_positive",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "alert_7")
	assert.Contains(t, text, "false_positive")
	assert.Contains(t, text, "txn_7")
}

func TestHandleReviewAlert_MissingArgs(t *testing.T) {
	h := NewHandlers(NewSentraClient(Config{}))

	result, err := h.HandleReviewAlert(context.Background(), makeRequest(map[string]any{"status": "resolved"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "alert_id is required")

	result, err = h.HandleReviewAlert(context.Background(), makeRequest(map[string]any{"alert_id": "a1"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "status is required")
}

func TestHandleReviewAlert_InvalidStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/alerts/alert_1/status", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "unknown status value"})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleReviewAlert(context.Background(), makeRequest(map[string]any{
		"alert_id": "alert_1",
		"status":   "bogus",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "unknown status value")
}

// ============================================================
// Handler: get_user_activity
// ============================================================

func TestHandleGetUserActivity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/user_3/transactions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"transactions": []map[string]any{
				{"transactionId": "txn_b", "amount": 55.20, "merchant": "Grocer", "riskScore": 5.0},
				{"transactionId": "txn_a", "amount": 9200.00, "merchant": "Casino", "riskScore": 68.0, "isFraud": true},
			},
			"count": 2,
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleGetUserActivity(context.Background(), makeRequest(map[string]any{
		"user_id": "user_3",
		"limit":   float64(10), // JSON numbers come as float64
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Found 2 transaction(s)")
	assert.Contains(t, text, "txn_b")
	assert.Contains(t, text, "$9200.00")
	assert.Contains(t, text, "FLAGGED AS FRAUD")
}

func TestHandleGetUserActivity_MissingUserID(t *testing.T) {
	h := NewHandlers(NewSentraClient(Config{}))
	result, err := h.HandleGetUserActivity(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "user_id is required")
}

// ============================================================
// Handler: score_transaction
// ============================================================

func TestHandleScoreTransaction(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/transactions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(body, &m)
		assert.Equal(t, "txn_new", m["transactionId"])
		assert.Equal(t, "user_1", m["userId"])
		assert.Equal(t, 16000.0, m["amount"])

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"transaction": map[string]any{"transactionId": "txn_new", "riskScore": 56.0},
			"assessment": map[string]any{
				"score": 56.0, "isFraud": false, "category": "high_risk",
				"reasons": []string{"Very large transaction amount (>$15,000)"},
			},
			"alert": map[string]any{"id": "alert_new", "status": "pending"},
		})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleScoreTransaction(context.Background(), makeRequest(map[string]any{
		"transaction_id": "txn_new",
		"user_id":        "user_1",
		"amount":         float64(16000),
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "56.0")
	assert.Contains(t, text, "high_risk")
	assert.Contains(t, text, "Very large transaction amount")
	assert.Contains(t, text, "alert_new")
}

func TestHandleScoreTransaction_Duplicate(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/transactions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "transaction already exists"})
	})

	h, cleanup := newTestSetup(mux)
	defer cleanup()

	result, err := h.HandleScoreTransaction(context.Background(), makeRequest(map[string]any{
		"transaction_id": "txn_dup",
		"user_id":        "user_1",
		"amount":         float64(100),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "already exists")
}

func TestHandleScoreTransaction_MissingArgs(t *testing.T) {
	h := NewHandlers(NewSentraClient(Config{}))

	result, _ := h.HandleScoreTransaction(context.Background(), makeRequest(map[string]any{
		"user_id": "user_1", "amount": float64(10),
	}))
	assert.True(t, result.IsError)

	result, _ = h.HandleScoreTransaction(context.Background(), makeRequest(map[string]any{
		"transaction_id": "txn_1", "amount": float64(10),
	}))
	assert.True(t, result.IsError)

	result, _ = h.HandleScoreTransaction(context.Background(), makeRequest(map[string]any{
		"transaction_id": "txn_1", "user_id": "user_1",
	}))
	assert.True(t, result.IsError)
}

// ============================================================
// Edge cases: handler never returns Go error
// ============================================================

func TestHandlers_NeverReturnGoError(t *testing.T) {
	// All handlers should return (result, nil) even on failures.
	// The failure is encoded in result.IsError, not in the Go error.
	h := NewHandlers(NewSentraClient(Config{APIURL: "http://127.0.0.1:1"}))

	tests := []struct {
		name string
		fn   func() (*mcp.CallToolResult, error)
	}{
		{"ListFraudAlerts", func() (*mcp.CallToolResult, error) {
			return h.HandleListFraudAlerts(context.Background(), makeRequest(nil))
		}},
		{"GetTransaction", func() (*mcp.CallToolResult, error) {
			return h.HandleGetTransaction(context.Background(), makeRequest(map[string]any{"transaction_id": "t1"}))
		}},
		{"GetFraudStats", func() (*mcp.CallToolResult, error) {
			return h.HandleGetFraudStats(context.Background(), makeRequest(nil))
		}},
		{"ReviewAlert", func() (*mcp.CallToolResult, error) {
			return h.HandleReviewAlert(context.Background(), makeRequest(map[string]any{"alert_id": "a1", "status": "resolved"}))
		}},
		{"GetUserActivity", func() (*mcp.CallToolResult, error) {
			return h.HandleGetUserActivity(context.Background(), makeRequest(map[string]any{"user_id": "u1"}))
		}},
		{"ScoreTransaction", func() (*mcp.CallToolResult, error) {
			return h.HandleScoreTransaction(context.Background(), makeRequest(map[string]any{
				"transaction_id": "t1", "user_id": "u1", "amount": float64(10),
			}))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.fn()
			assert.NoError(t, err, "handler should never return Go error")
			assert.NotNil(t, result, "handler should always return a result")
			assert.True(t, result.IsError, "unreachable server should produce isError result")
		})
	}
}

// ============================================================
// Server wiring
// ============================================================

func TestNewMCPServer(t *testing.T) {
	s := NewMCPServer(Config{APIURL: "http://localhost:8080"})
	require.NotNil(t, s)
}
