package llm

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/neurondb/NeuronQuery/api/internal/database"
)

// SummarySampleRows is how many rows the summarizer sees
const SummarySampleRows = 5

const sqlSystemPrompt = `You are an expert SQL query generator for PostgreSQL databases.
Convert natural language questions into accurate, efficient SQL queries.

This is an e-commerce database with the following tables:
- customers: customer information (customer_id, first_name, last_name, email, phone, address, city, state, country, postal_code)
- products: product catalog (product_id, product_name, description, category, price, stock_quantity, is_active)
- orders: customer orders (order_id, customer_id, order_date, total_amount, order_status, shipping_address)
- order_items: items within orders (order_item_id, order_id, product_id, quantity, unit_price, total_price)

Guidelines:
- Generate only SELECT queries (no INSERT, UPDATE, DELETE, DROP, etc.)
- Use PostgreSQL-specific syntax and functions
- Always include LIMIT clause (max 100 rows) for performance
- Use proper JOIN syntax when multiple tables are involved
- Use ILIKE for case-insensitive text matching
- Handle date/time queries appropriately
- Use aggregate functions (COUNT, SUM, AVG) when appropriate
- Include proper WHERE clauses for filtering
- For customer queries, use the customers table
- For product queries, use the products table
- For order queries, join orders with customers and/or order_items as needed
`

const sqlUserPrompt = `Convert this natural language question to a SQL query:
%q

Requirements:
- Return only the SQL query, no explanations
- Use proper PostgreSQL syntax
- Include appropriate WHERE clauses for filtering
- Use JOINs when multiple tables are needed
- Limit results to 100 rows maximum for performance
- Use ILIKE for case-insensitive text matching
`

const summarySystemPrompt = `You are a helpful assistant that explains database query results in natural language.
Convert the SQL query results into a conversational, easy-to-understand response.

Guidelines:
- Be conversational and friendly
- Summarize the data clearly
- Mention the number of results found
- Highlight key insights or patterns
- If there are many results, focus on the most important ones
- Use bullet points or numbered lists when appropriate
- Don't include technical SQL details in the response
`

const summaryUserPrompt = `Original question: %q
SQL query executed: %s
Number of results: %d
Sample results (first %d): %s

Please provide a natural language explanation of these results that directly answers the user's question.
`

const healthPrompt = "Return the word 'healthy' if you can read this message."

// SQLSystemPrompt returns the base guidance followed by the column listing of every table
func SQLSystemPrompt(snapshot *database.SchemaSnapshot) string {
	if snapshot == nil || len(snapshot.Tables) == 0 {
		return sqlSystemPrompt
	}

	names := make([]string, 0, len(snapshot.Tables))
	for name := range snapshot.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(sqlSystemPrompt)
	b.WriteString("\nAvailable database schema:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "\nTable: %s\nColumns:\n", name)
		for _, col := range snapshot.Tables[name].Columns {
			fmt.Fprintf(&b, "  - %s (%s, nullable: %s)\n", col.Name, col.DataType, col.IsNullable)
		}
	}
	return b.String()
}

// SQLUserPrompt wraps the question with output requirements
func SQLUserPrompt(question string) string {
	return fmt.Sprintf(sqlUserPrompt, question)
}

// SummaryUserPrompt describes the executed query and a sample of its rows
func SummaryUserPrompt(question, sql string, rows database.Rows) string {
	sample := sampleRows(rows)
	return fmt.Sprintf(summaryUserPrompt, question, sql, len(rows), SummarySampleRows, sampleJSON(sample))
}

func sampleRows(rows database.Rows) database.Rows {
	if len(rows) > SummarySampleRows {
		return rows[:SummarySampleRows]
	}
	return rows
}

func sampleJSON(rows database.Rows) string {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", rows)
	}
	return string(data)
}
