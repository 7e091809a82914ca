// Package expenses talks to the expense data service and exposes its
// read operations as tools.
package expenses

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/argus-beta/fincall/internal/logger"
)

// DefaultBaseURL is used when no data service URL is configured.
const DefaultBaseURL = "http://localhost:3000"

// maxBodyBytes caps how much of a data service response is read.
const maxBodyBytes = 4 << 20

// ErrNoData is returned when the service answers successfully but the
// requested record does not exist.
var ErrNoData = errors.New("expenses: no matching data")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("expenses: data service returned status %d", e.Status)
	}
	return fmt.Sprintf("expenses: data service returned status %d: %s", e.Status, e.Message)
}

// EnvelopeError is returned when a response lacks the expected field.
type EnvelopeError struct {
	Path string
}

func (e *EnvelopeError) Error() string {
	return fmt.Sprintf("expenses: response has no %s", e.Path)
}

// Expense is the subset of an expense record surfaced to the model.
type Expense struct {
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
}

// ExpenseList is returned by the list-style operations.
type ExpenseList struct {
	Expenses   []Expense `json:"expenses"`
	TotalCount int       `json:"total_count"`
}

// Partner aggregates the transactions exchanged with one counterparty.
type Partner struct {
	Name             string  `json:"name"`
	TotalAmount      float64 `json:"total_amount"`
	TransactionCount int     `json:"transaction_count"`
	Transactions     []any   `json:"transactions"`
}

// ListFilter selects expenses from /expense/get-expense. Empty fields are
// not sent.
type ListFilter struct {
	Category  string
	Type      string
	StartDate string
	EndDate   string
	Search    string
	Page      int
	PageSize  int
}

func (f ListFilter) values() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("category", f.Category)
	set("type", f.Type)
	set("startDate", f.StartDate)
	set("endDate", f.EndDate)
	set("searchText", f.Search)
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(f.PageSize))
	}
	return q
}

// Client reads from the expense data service on behalf of a user.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

// NewClient creates a client for the service at baseURL. A nil httpClient
// gets a default with timeout.
func NewClient(baseURL string, httpClient *http.Client, log *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		log:     logger.OrDiscard(log),
	}
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string { return c.baseURL }

// ListExpenses returns the expenses matching f.
func (c *Client) ListExpenses(ctx context.Context, token string, f ListFilter) (ExpenseList, error) {
	res, err := c.get(ctx, token, "/expense/get-expense", f.values())
	if err != nil {
		return ExpenseList{}, err
	}
	return expenseList(res, "metadata.Expenses")
}

// ExpensesByAmount returns expenses of exactly amount recorded since the
// given YYYY-MM-DD date.
func (c *Client) ExpensesByAmount(ctx context.Context, token string, amount float64, since string) (ExpenseList, error) {
	q := url.Values{}
	q.Set("amount", strconv.FormatFloat(amount, 'f', -1, 64))
	q.Set("sinceBy", since)

	res, err := c.get(ctx, token, "/expense/getExpenseByAmount", q)
	if err != nil {
		return ExpenseList{}, err
	}
	return expenseList(res, "metadata.expense")
}

// Sort orders for SortedExpense.
const (
	Descending = -1
	Ascending  = 1
)

// SortedExpense returns the first expense when sorted by amount in the
// given order: Descending yields the largest, Ascending the smallest.
func (c *Client) SortedExpense(ctx context.Context, token string, order int) (Expense, error) {
	q := url.Values{}
	q.Set("option", strconv.Itoa(order))

	res, err := c.get(ctx, token, "/expense/sortExpenses", q)
	if err != nil {
		return Expense{}, err
	}
	list := res.Get("metadata.expense")
	if !list.Exists() {
		return Expense{}, &EnvelopeError{Path: "metadata.expense"}
	}
	first := list.Get("0")
	if !first.Exists() {
		return Expense{}, ErrNoData
	}
	return toExpense(first), nil
}

// TopPartner returns the counterparty with the most transactions.
func (c *Client) TopPartner(ctx context.Context, token string) (Partner, error) {
	q := url.Values{}
	q.Set("option", strconv.Itoa(Descending))

	res, err := c.get(ctx, token, "/expense/sortPartner", q)
	if err != nil {
		return Partner{}, err
	}
	list := res.Get("metadata.expense")
	if !list.Exists() {
		return Partner{}, &EnvelopeError{Path: "metadata.expense"}
	}
	first := list.Get("0")
	if !first.Exists() {
		return Partner{}, ErrNoData
	}

	p := Partner{
		Name:         first.Get("_id").String(),
		TotalAmount:  amount(first.Get("amount")),
		Transactions: []any{},
	}
	if txs, ok := first.Get("list").Value().([]any); ok {
		p.Transactions = txs
	}
	p.TransactionCount = len(p.Transactions)
	return p, nil
}

// get performs an authenticated GET and returns the parsed body.
func (c *Client) get(ctx context.Context, token, path string, q url.Values) (gjson.Result, error) {
	endpoint := c.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("expenses: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("expenses: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return gjson.Result{}, fmt.Errorf("expenses: read body: %w", err)
	}
	c.log.Debug("data service call", "path", path, "status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return gjson.Result{}, &StatusError{Status: resp.StatusCode, Message: gjson.GetBytes(body, "message").String()}
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("expenses: %s returned invalid JSON", path)
	}
	return gjson.ParseBytes(body), nil
}

func expenseList(res gjson.Result, path string) (ExpenseList, error) {
	list := res.Get(path)
	if !list.Exists() || !list.IsArray() {
		return ExpenseList{}, &EnvelopeError{Path: path}
	}
	out := ExpenseList{Expenses: []Expense{}}
	list.ForEach(func(_, item gjson.Result) bool {
		out.Expenses = append(out.Expenses, toExpense(item))
		return true
	})
	out.TotalCount = len(out.Expenses)
	return out, nil
}

func toExpense(item gjson.Result) Expense {
	return Expense{
		Amount:      amount(item.Get("amount")),
		Category:    item.Get("category").String(),
		Description: item.Get("description").String(),
	}
}

// amount reads a number that may be encoded as a JSON number, a string,
// or a Mongo {"$numberDecimal": "..."} object.
func amount(v gjson.Result) float64 {
	if v.IsObject() {
		v = v.Get(gjson.Escape("$numberDecimal"))
	}
	return v.Float()
}
