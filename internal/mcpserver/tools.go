package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Sentra MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolListFraudAlerts = mcp.NewTool("list_fraud_alerts",
	mcp.WithDescription(
		"List fraud alerts raised by the scoring engine. "+
			"Returns alert IDs, risk scores, alert types, and review status. "+
			"Use this to find alerts that need human review."),
	mcp.WithString("status",
		mcp.Description("Filter by review status"),
		mcp.Enum("pending", "reviewed", "resolved", "false_positive")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of alerts to return (default 20)")),
)

var ToolGetTransaction = mcp.NewTool("get_transaction",
	mcp.WithDescription(
		"Look up a scored transaction by its ID. "+
			"Returns the amount, merchant, risk score, fraud flag, and the reasons the engine recorded."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("The transaction ID (e.g. 'txn_12345')")),
)

var ToolGetFraudStats = mcp.NewTool("get_fraud_stats",
	mcp.WithDescription(
		"Get aggregate fraud statistics: total transactions scored, flagged fraud count, "+
			"high-risk count, and the average risk score."),
)

var ToolReviewAlert = mcp.NewTool("review_alert",
	mcp.WithDescription(
		"Move a fraud alert to a new review status after investigating it. "+
			"Use 'resolved' when the fraud is confirmed and handled, "+
			"'false_positive' when the transaction turned out to be legitimate."),
	mcp.WithString("alert_id",
		mcp.Required(),
		mcp.Description("The alert ID from list_fraud_alerts (e.g. 'alert_abc123')")),
	mcp.WithString("status",
		mcp.Required(),
		mcp.Description("The new review status"),
		mcp.Enum("reviewed", "resolved", "false_positive")),
)

var ToolGetUserActivity = mcp.NewTool("get_user_activity",
	mcp.WithDescription(
		"Get a user's recent transaction history, newest first. "+
			"Useful for judging whether a flagged transaction fits the user's normal spending pattern."),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("The user ID (e.g. 'user_42')")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of transactions to return (default 20)")),
)

var ToolScoreTransaction = mcp.NewTool("score_transaction",
	mcp.WithDescription(
		"Submit a transaction for fraud scoring. "+
			"Returns the risk score, category, and any alert the engine opened. "+
			"Transaction IDs must be unique; resubmitting an ID is rejected."),
	mcp.WithString("transaction_id",
		mcp.Required(),
		mcp.Description("Unique transaction ID")),
	mcp.WithString("user_id",
		mcp.Required(),
		mcp.Description("ID of the user who made the transaction")),
	mcp.WithNumber("amount",
		mcp.Required(),
		mcp.Description("Transaction amount in dollars (must be positive)")),
	mcp.WithString("merchant",
		mcp.Description("Merchant name")),
	mcp.WithString("category",
		mcp.Description("Spending category (e.g. 'groceries', 'travel')")),
)
