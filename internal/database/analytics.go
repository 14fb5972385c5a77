/*-------------------------------------------------------------------------
 *
 * analytics.go
 *    Fixed dashboard queries over the e-commerce schema
 *
 * Copyright (c) 2024-2026, neurondb, Inc. <admin@neurondb.com>
 *
 * IDENTIFICATION
 *    internal/database/analytics.go
 *
 *-------------------------------------------------------------------------
 */

package database

import (
	"context"
	"fmt"

	"github.com/neurondb/NeuronQuery/api/internal/sqlguard"
)

/* AnalyticsQuery is one named dashboard query */
type AnalyticsQuery struct {
	Key string
	SQL string
}

/* AnalyticsQueries run in this order; each one still passes through the gate */
var AnalyticsQueries = []AnalyticsQuery{
	{Key: "metrics", SQL: `
SELECT
    COUNT(DISTINCT o.order_id) as total_orders,
    COUNT(DISTINCT c.customer_id) as total_customers,
    COALESCE(SUM(o.total_amount), 0) as total_revenue,
    COALESCE(AVG(o.total_amount), 0) as avg_order_value
FROM customers c
LEFT JOIN orders o ON c.customer_id = o.customer_id
WHERE o.order_status NOT IN ('cancelled', 'returned')`},
	{Key: "topCategories", SQL: `
SELECT
    p.category,
    COUNT(DISTINCT oi.order_id) as orders_count,
    SUM(oi.quantity) as units_sold,
    SUM(oi.total_price) as revenue
FROM products p
LEFT JOIN order_items oi ON p.product_id = oi.product_id
LEFT JOIN orders o ON oi.order_id = o.order_id
WHERE o.order_status NOT IN ('cancelled', 'returned') OR o.order_status IS NULL
GROUP BY p.category
ORDER BY revenue DESC NULLS LAST
LIMIT 5`},
	{Key: "salesByState", SQL: `
SELECT
    c.state,
    COUNT(DISTINCT c.customer_id) as customer_count,
    COALESCE(SUM(o.total_amount), 0) as total_spending,
    COUNT(o.order_id) as total_orders
FROM customers c
LEFT JOIN orders o ON c.customer_id = o.customer_id
WHERE o.order_status NOT IN ('cancelled', 'returned') OR o.order_status IS NULL
GROUP BY c.state
ORDER BY total_spending DESC NULLS LAST
LIMIT 8`},
	{Key: "topCustomers", SQL: `
SELECT
    c.first_name || ' ' || c.last_name as customer_name,
    c.city || ', ' || c.state as location,
    COUNT(o.order_id) as total_orders,
    COALESCE(SUM(o.total_amount), 0) as total_spent
FROM customers c
LEFT JOIN orders o ON c.customer_id = o.customer_id
WHERE o.order_status NOT IN ('cancelled', 'returned') OR o.order_status IS NULL
GROUP BY c.customer_id, c.first_name, c.last_name, c.city, c.state
ORDER BY total_spent DESC NULLS LAST
LIMIT 5`},
	{Key: "salesTrend", SQL: `
SELECT
    EXTRACT(YEAR FROM o.order_date) as year,
    COUNT(*) as order_count,
    COALESCE(SUM(o.total_amount), 0) as total_sales,
    AVG(o.total_amount) as avg_order_value,
    COUNT(DISTINCT o.customer_id) as unique_customers
FROM orders o
WHERE o.order_status NOT IN ('cancelled', 'returned')
AND o.order_date >= CURRENT_DATE - INTERVAL '5 years'
GROUP BY EXTRACT(YEAR FROM o.order_date)
ORDER BY year`},
	{Key: "orderStatus", SQL: `
SELECT
    order_status,
    COUNT(*) as count,
    SUM(total_amount) as total_amount
FROM orders
GROUP BY order_status
ORDER BY count DESC`},
}

/* Analytics is the dashboard payload */
type Analytics struct {
	Metrics       Row  `json:"metrics"`
	TopCategories Rows `json:"topCategories"`
	SalesByState  Rows `json:"salesByState"`
	TopCustomers  Rows `json:"topCustomers"`
	SalesTrend    Rows `json:"salesTrend"`
	OrderStatus   Rows `json:"orderStatus"`
}

func (a *Analytics) set(key string, rows Rows) {
	switch key {
	case "metrics":
		a.Metrics = Row{}
		if len(rows) > 0 {
			a.Metrics = rows[0]
		}
	case "topCategories":
		a.TopCategories = rows
	case "salesByState":
		a.SalesByState = rows
	case "topCustomers":
		a.TopCustomers = rows
	case "salesTrend":
		a.SalesTrend = rows
	case "orderStatus":
		a.OrderStatus = rows
	}
}

/* PreflightAnalytics checks every fixed query against the gate without executing it */
func PreflightAnalytics(gate sqlguard.Sanitizer) error {
	for _, q := range AnalyticsQueries {
		if _, err := gate.Sanitize(q.SQL); err != nil {
			return fmt.Errorf("analytics query %s rejected: %w", q.Key, err)
		}
	}
	return nil
}

/* Analytics runs the dashboard queries; any failure fails the whole payload */
func (e *Executor) Analytics(ctx context.Context, gate sqlguard.Sanitizer) (*Analytics, error) {
	result := &Analytics{}
	for _, q := range AnalyticsQueries {
		stmt, err := gate.Sanitize(q.SQL)
		if err != nil {
			return nil, fmt.Errorf("analytics query %s rejected: %w", q.Key, err)
		}
		rows, err := e.Execute(ctx, stmt)
		if err != nil {
			return nil, fmt.Errorf("analytics query %s: %w", q.Key, err)
		}
		result.set(q.Key, rows)
	}
	e.logger.Info("Analytics data retrieved", nil)
	return result, nil
}
