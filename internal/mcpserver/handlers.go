package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *SentraClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *SentraClient) *Handlers {
	return &Handlers{client: client}
}

// HandleListFraudAlerts lists fraud alerts for review.
func (h *Handlers) HandleListFraudAlerts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := req.GetString("status", "")
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListAlerts(ctx, status, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list alerts: %v", err)), nil
	}

	text, err := formatAlertList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse alerts: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetTransaction looks up one scored transaction.
func (h *Handlers) HandleGetTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("transaction_id", "")
	if id == "" {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}

	raw, err := h.client.GetTransaction(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get transaction: %v", err)), nil
	}

	text, err := formatTransaction(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse transaction: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetFraudStats returns aggregate statistics.
func (h *Handlers) HandleGetFraudStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetStats(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get stats: %v", err)), nil
	}

	text, err := formatStats(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse stats: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleReviewAlert transitions an alert's review status.
func (h *Handlers) HandleReviewAlert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	alertID := req.GetString("alert_id", "")
	if alertID == "" {
		return mcp.NewToolResultError("alert_id is required"), nil
	}
	status := req.GetString("status", "")
	if status == "" {
		return mcp.NewToolResultError("status is required"), nil
	}

	raw, err := h.client.ReviewAlert(ctx, alertID, status)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to review alert: %v", err)), nil
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse alert: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Alert %s marked as %s.\nTransaction: %s | Risk score: %s",
		alertID, getString(m, "status"),
		getString(m, "transactionId"), getString(m, "riskScore"))), nil
}

// HandleGetUserActivity returns a user's recent transactions.
func (h *Handlers) HandleGetUserActivity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	limit := req.GetInt("limit", 20)

	raw, err := h.client.GetUserTransactions(ctx, userID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get user activity: %v", err)), nil
	}

	text, err := formatTransactionList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse transactions: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleScoreTransaction submits a transaction for scoring.
func (h *Handlers) HandleScoreTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	txID := req.GetString("transaction_id", "")
	if txID == "" {
		return mcp.NewToolResultError("transaction_id is required"), nil
	}
	userID := req.GetString("user_id", "")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	amount := req.GetFloat("amount", 0)
	if amount == 0 {
		return mcp.NewToolResultError("amount is required"), nil
	}

	body := map[string]any{
		"transactionId": txID,
		"userId":        userID,
		"amount":        amount,
	}
	if v := req.GetString("merchant", ""); v != "" {
		body["merchant"] = v
	}
	if v := req.GetString("category", ""); v != "" {
		body["category"] = v
	}

	raw, err := h.client.ScoreTransaction(ctx, body)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Scoring failed: %v", err)), nil
	}

	var resp struct {
		Transaction map[string]any `json:"transaction"`
		Assessment  struct {
			Score    float64  `json:"score"`
			IsFraud  bool     `json:"isFraud"`
			Category string   `json:"category"`
			Reasons  []string `json:"reasons"`
		} `json:"assessment"`
		Alert map[string]any `json:"alert"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse scoring result: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Transaction %s scored.\n", txID)
	fmt.Fprintf(&sb, "Risk score: %.1f (%s)\n", resp.Assessment.Score, resp.Assessment.Category)
	if resp.Assessment.IsFraud {
		sb.WriteString("Flagged as FRAUD.\n")
	}
	if len(resp.Assessment.Reasons) > 0 {
		sb.WriteString("Reasons:\n")
		for _, r := range resp.Assessment.Reasons {
			fmt.Fprintf(&sb, "  - %s\n", r)
		}
	}
	if resp.Alert != nil {
		fmt.Fprintf(&sb, "Alert opened: %s\n", getString(resp.Alert, "id"))
	}

	return mcp.NewToolResultText(sb.String()), nil
}

// --- Formatting helpers ---

func formatAlertList(raw json.RawMessage) (string, error) {
	var resp struct {
		Alerts []map[string]any `json:"alerts"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Alerts) == 0 {
		return "No alerts found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d alert(s):\n\n", len(resp.Alerts))
	for i, a := range resp.Alerts {
		fmt.Fprintf(&sb, "%d. %s [%s]\n", i+1, getString(a, "id"), getString(a, "status"))
		fmt.Fprintf(&sb, "   Transaction: %s | User: %s\n", getString(a, "transactionId"), getString(a, "userId"))
		if v, ok := getFloat(a, "riskScore"); ok {
			fmt.Fprintf(&sb, "   Risk: %.1f | Type: %s\n", v, getString(a, "alertType"))
		}
		if desc := getString(a, "description"); desc != "" {
			fmt.Fprintf(&sb, "   %s\n", desc)
		}
		if i < len(resp.Alerts)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String(), nil
}

func formatTransaction(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Transaction %s\n", getString(m, "transactionId"))
	fmt.Fprintf(&sb, "  User: %s\n", getString(m, "userId"))
	if v, ok := getFloat(m, "amount"); ok {
		fmt.Fprintf(&sb, "  Amount: $%.2f\n", v)
	}
	if v := getString(m, "merchant"); v != "" {
		fmt.Fprintf(&sb, "  Merchant: %s\n", v)
	}
	if v := getString(m, "category"); v != "" {
		fmt.Fprintf(&sb, "  Category: %s\n", v)
	}
	if v, ok := getFloat(m, "riskScore"); ok {
		fmt.Fprintf(&sb, "  Risk score: %.1f\n", v)
	}
	if fraud, ok := m["isFraud"].(bool); ok && fraud {
		sb.WriteString("  Flagged as FRAUD\n")
	}
	if v := getString(m, "fraudReason"); v != "" {
		fmt.Fprintf(&sb, "  Reasons: %s\n", v)
	}
	return sb.String(), nil
}

func formatTransactionList(raw json.RawMessage) (string, error) {
	var resp struct {
		Transactions []map[string]any `json:"transactions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}
	if len(resp.Transactions) == 0 {
		return "No transactions found for this user.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d transaction(s), newest first:\n\n", len(resp.Transactions))
	for i, tx := range resp.Transactions {
		amount, _ := getFloat(tx, "amount")
		score, _ := getFloat(tx, "riskScore")
		fmt.Fprintf(&sb, "%d. %s: $%.2f at %s (risk %.1f)\n",
			i+1, getString(tx, "transactionId"), amount, getString(tx, "merchant"), score)
		if fraud, ok := tx["isFraud"].(bool); ok && fraud {
			sb.WriteString("   FLAGGED AS FRAUD\n")
		}
	}
	return sb.String(), nil
}

func formatStats(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Fraud statistics:\n")
	if v, ok := getFloat(m, "totalTransactions"); ok {
		fmt.Fprintf(&sb, "  Transactions scored: %.0f\n", v)
	}
	if v, ok := getFloat(m, "fraudCount"); ok {
		fmt.Fprintf(&sb, "  Flagged as fraud:    %.0f\n", v)
	}
	if v, ok := getFloat(m, "highRiskCount"); ok {
		fmt.Fprintf(&sb, "  High risk (>=70):    %.0f\n", v)
	}
	if v, ok := getFloat(m, "avgRiskScore"); ok {
		fmt.Fprintf(&sb, "  Average risk score:  %.1f\n", v)
	}
	if v, ok := getFloat(m, "totalAmount"); ok {
		fmt.Fprintf(&sb, "  Total volume:        $%.2f\n", v)
	}
	return sb.String(), nil
}

// getString extracts a string value from a map, tolerating numeric values.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
