package ai

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sirupsen/logrus"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultModel = "openai/gpt-4.1-mini"

// AgentConfig holds configuration for the analytics agent.
type AgentConfig struct {
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	OpenRouterAPIKey string
	// Model name as understood by OpenRouter, e.g. "openai/gpt-4.1-mini".
	Model string

	Logger *logrus.Logger
}

// Agent answers natural-language questions about executed buys by generating
// a SELECT over the trades table, running it, and summarising the rows.
type Agent struct {
	llm    llms.Model
	db     *sql.DB
	logger *logrus.Logger
}

// NewAgent creates an Agent with its own ClickHouse and LLM clients.
func NewAgent(ctx context.Context, cfg AgentConfig) (*Agent, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.OpenRouterAPIKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	// OpenRouter speaks the OpenAI wire protocol.
	llm, err := openai.New(
		openai.WithToken(cfg.OpenRouterAPIKey),
		openai.WithBaseURL("https://openrouter.ai/api/v1"),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenRouter LLM: %w", err)
	}

	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{cfg.ClickHouseAddr},
		Auth: clickhouse.Auth{
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
		},
	})
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse from analytics agent: %w", err)
	}

	cfg.Logger.WithFields(logrus.Fields{
		"addr":     cfg.ClickHouseAddr,
		"database": cfg.ClickHouseDatabase,
		"model":    cfg.Model,
	}).Info("initialized analytics agent")

	return &Agent{llm: llm, db: db, logger: cfg.Logger}, nil
}

// Close releases the agent's database connection.
func (a *Agent) Close() error {
	if a.db == nil {
		return nil
	}
	a.logger.Debug("closing analytics agent ClickHouse connection")
	return a.db.Close()
}

// AskResult is the structured result of an Ask call.
type AskResult struct {
	SQL    string
	Answer string
}

// Ask generates SQL for the question, executes it, and summarises the rows.
func (a *Agent) Ask(ctx context.Context, question string) (*AskResult, error) {
	query, err := a.generateSQL(ctx, question)
	if err != nil {
		return nil, err
	}

	rows, err := a.queryRows(ctx, query)
	if err != nil {
		return nil, err
	}
	rowsJSON, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query rows: %w", err)
	}

	answer, err := a.summarise(ctx, question, query, string(rowsJSON))
	if err != nil {
		return nil, err
	}

	return &AskResult{SQL: query, Answer: answer}, nil
}

func (a *Agent) generateSQL(ctx context.Context, question string) (string, error) {
	prompt := fmt.Sprintf(`
You are an expert ClickHouse SQL generator.

Use ONLY the following table:
%s

Rules:
- Return a single SELECT query in ClickHouse SQL.
- Do NOT include any explanation or comments, only the SQL.
- The table is trades.
- Use timestamp for time filtering.
- Amounts are integers in smallest units; convert with pow(10, out_decimals) or 1e9 as described in the schema.
- Use aggregate functions like sum, avg, count when appropriate.
- If user asks for "top" or "biggest" something, use ORDER BY ... DESC and LIMIT.
- Never modify data: no INSERT, UPDATE, DELETE, DROP, ALTER, CREATE, TRUNCATE.

User question:
%s
`, tradesSchemaDescription, question)

	resp, err := llms.GenerateFromSinglePrompt(ctx, a.llm, prompt, llms.WithMaxTokens(512))
	if err != nil {
		return "", fmt.Errorf("LLM SQL generation failed: %w", err)
	}

	query := sanitizeSQL(resp)
	if err := validateSQL(query); err != nil {
		return "", err
	}

	a.logger.WithField("sql", query).Debug("generated SQL from question")
	return query, nil
}

// queryRows executes the generated SQL and collects the result set as
// column-keyed maps, one per row.
func (a *Agent) queryRows(ctx context.Context, query string) ([]map[string]any, error) {
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

func (a *Agent) summarise(ctx context.Context, question, query, rowsJSON string) (string, error) {
	prompt := fmt.Sprintf(`
You are a helpful assistant analysing AMM buy-order analytics.

User question:
%s

SQL that was executed:
%s

Query results in JSON (array of objects, can be empty):
%s

Instructions:
- If the result set is empty, say that no data was found for the question.
- Otherwise, answer the question concisely using bullet points and short sentences.
- Include key numbers (volumes, counts, prices) rounded reasonably.
- Do not restate the raw JSON.
`, question, query, rowsJSON)

	resp, err := llms.GenerateFromSinglePrompt(ctx, a.llm, prompt, llms.WithMaxTokens(512))
	if err != nil {
		return "", fmt.Errorf("LLM summarisation failed: %w", err)
	}
	return strings.TrimSpace(resp), nil
}

// sanitizeSQL strips markdown code fences, language tags, and trailing
// semicolons from the raw LLM output.
func sanitizeSQL(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		s = strings.TrimSpace(strings.TrimPrefix(s, "```"))
	}
	if strings.HasPrefix(strings.ToLower(s), "sql") {
		s = s[3:]
	}
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[:idx]
	}

	s = strings.TrimSuffix(strings.TrimSpace(s), ";")
	return strings.TrimSpace(s)
}

// validateSQL enforces a conservative policy: exactly one SELECT against the
// trades table, no mutating keywords.
func validateSQL(s string) error {
	if s == "" {
		return fmt.Errorf("empty SQL generated by LLM")
	}

	upper := strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(upper, "SELECT") {
		return fmt.Errorf("only SELECT queries are allowed, got: %s", upper[:min(20, len(upper))])
	}

	for _, kw := range []string{
		"INSERT ", "UPDATE ", "DELETE ", "DROP ", "ALTER ", "TRUNCATE ",
		"CREATE ", "RENAME ", "ATTACH ", "DETACH ",
	} {
		if strings.Contains(upper, kw) {
			return fmt.Errorf("disallowed SQL keyword %q in generated query", kw)
		}
	}

	if strings.Contains(s, ";") {
		return fmt.Errorf("multiple statements or semicolons are not allowed")
	}
	if !strings.Contains(upper, "FROM TRADES") {
		return fmt.Errorf("query must target the trades table")
	}
	return nil
}
