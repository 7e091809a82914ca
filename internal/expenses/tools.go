package expenses

import (
	"context"
	"fmt"
	"time"

	"github.com/argus-beta/fincall/internal/auth"
	"github.com/argus-beta/fincall/internal/core/tools"
)

const dateLayout = "2006-01-02"

type pageArgs struct {
	Page     int `json:"page" desc:"Page number for pagination (starting from 1)" default:"1" min:"1"`
	PageSize int `json:"pageSize" desc:"Number of documents per page." default:"5" min:"1" max:"10"`
}

type listArgs struct {
	pageArgs
}

type amountArgs struct {
	Amount  float64 `json:"amount" desc:"The amount the user asks for. It is a number with 5 digits after the decimal point. For example 50000.00000, 100000.50000"`
	SinceBy string  `json:"sinceBy" format:"date" default:"2025-01-01" desc:"Transaction query start date, default is 2025-01-01. Format: YYYY-MM-DD. Remember that if dont provide this parameter, the default value is 2025-01-01"`
	pageArgs
}

type categoryArgs struct {
	Category string `json:"category" enum:"giải trí,mua sắm,di chuyển,sức khỏe,ăn uống,hóa đơn,nợ,khác" desc:"The category the user asks for. Category have to be one of the following: 'giải trí', 'mua sắm', 'di chuyển', 'sức khỏe', 'ăn uống', 'hóa đơn', 'nợ', 'khác'"`
	pageArgs
}

type typeArgs struct {
	Kind string `json:"type" enum:"gửi,nhận" desc:"The type the user asks for. type have to be one of the following: 'gửi', 'nhận'. Example 'chi' = 'gửi', 'thu' = 'nhận'"`
	pageArgs
}

type dateArgs struct {
	Start string `json:"start" format:"date" default:"2025-01-01" desc:"The start date of the date range. Format: YYYY-MM-DD. Default is 2025-01-01"`
	End   string `json:"end" format:"date" default:"2029-01-01" desc:"The end date of the date range. Format: YYYY-MM-DD. Default is 2029-01-01"`
	pageArgs
}

type searchArgs struct {
	KeySearch string `json:"keySearch" desc:"key to search for"`
	pageArgs
}

type noArgs struct{}

// SingleExpense wraps the result of the max/min lookups.
type SingleExpense struct {
	Expense Expense `json:"expenses"`
}

// TopPartnerResult wraps the result of most_transaction_partner.
type TopPartnerResult struct {
	Partner Partner `json:"partner"`
}

// Register adds the expense tools to reg. Every tool acts on behalf of
// the auth.Identity injected as the caller context.
func Register(reg *tools.Registry, c *Client) error {
	descriptors := []tools.Descriptor{
		{
			Name:        "get_expenses",
			Description: "Get expenses for user when know page and pageSize, default return last 5 documents",
			Handler: tools.BindCaller(func(ctx context.Context, who auth.Identity, a listArgs) (ExpenseList, error) {
				return c.ListExpenses(ctx, who.Token, ListFilter{Page: a.Page, PageSize: a.PageSize})
			}),
		},
		{
			Name:        "get_expense_by_amount",
			Description: "Get list of expenses with specific amount and sinceBy day.",
			Handler: tools.BindCaller(func(ctx context.Context, who auth.Identity, a amountArgs) (ExpenseList, error) {
				if err := checkDate("sinceBy", a.SinceBy); err != nil {
					return ExpenseList{}, err
				}
				return c.ExpensesByAmount(ctx, who.Token, a.Amount, a.SinceBy)
			}),
		},
		{
			Name:        "get_expense_by_category",
			Description: "Get list of expenses with specific category",
			Handler: tools.BindCaller(func(ctx context.Context, who auth.Identity, a categoryArgs) (ExpenseList, error) {
				return c.ListExpenses(ctx, who.Token, ListFilter{Category: a.Category, Page: a.Page, PageSize: a.PageSize})
			}),
		},
		{
			Name:        "get_expense_by_type",
			Description: "Get a list of expenses to see if they are sent or received. type here is ['gửi', 'nhận']",
			Handler: tools.BindCaller(func(ctx context.Context, who auth.Identity, a typeArgs) (ExpenseList, error) {
				return c.ListExpenses(ctx, who.Token, ListFilter{Type: a.Kind, Page: a.Page, PageSize: a.PageSize})
			}),
		},
		{
			Name:        "get_max_expense",
			Description: "Get the most expensive transaction",
			Handler: tools.BindCaller(func(ctx context.Context, who auth.Identity, _ noArgs) (SingleExpense, error) {
				e, err := c.SortedExpense(ctx, who.Token, Descending)
				return SingleExpense{Expense: e}, err
			}),
		},
		{
			Name:        "get_min_expense",
			Description: "Get the least expensive transaction",
			Handler: tools.BindCaller(func(ctx context.Context, who auth.Identity, _ noArgs) (SingleExpense, error) {
				e, err := c.SortedExpense(ctx, who.Token, Ascending)
				return SingleExpense{Expense: e}, err
			}),
		},
		{
			Name:        "get_expense_by_date",
			Description: "Get list of expenses with specific date range",
			Handler: tools.BindCaller(func(ctx context.Context, who auth.Identity, a dateArgs) (ExpenseList, error) {
				if err := checkDate("start", a.Start); err != nil {
					return ExpenseList{}, err
				}
				if err := checkDate("end", a.End); err != nil {
					return ExpenseList{}, err
				}
				if a.End < a.Start {
					return ExpenseList{}, fmt.Errorf("end %s is before start %s", a.End, a.Start)
				}
				return c.ListExpenses(ctx, who.Token, ListFilter{StartDate: a.Start, EndDate: a.End, Page: a.Page, PageSize: a.PageSize})
			}),
		},
		{
			Name:        "search_expenses",
			Description: "search for expenses with specific key",
			Handler: tools.BindCaller(func(ctx context.Context, who auth.Identity, a searchArgs) (ExpenseList, error) {
				return c.ListExpenses(ctx, who.Token, ListFilter{Search: a.KeySearch, Page: a.Page, PageSize: a.PageSize})
			}),
		},
		{
			Name:        "most_transaction_partner",
			Description: "Get partner who has the most transactions with the user",
			Handler: tools.BindCaller(func(ctx context.Context, who auth.Identity, _ noArgs) (TopPartnerResult, error) {
				p, err := c.TopPartner(ctx, who.Token)
				return TopPartnerResult{Partner: p}, err
			}),
		},
	}

	for _, d := range descriptors {
		if err := reg.Register(d); err != nil {
			return err
		}
	}
	return nil
}

func checkDate(param, v string) error {
	if _, err := time.Parse(dateLayout, v); err != nil {
		return fmt.Errorf("parameter %q must be a YYYY-MM-DD date, got %q", param, v)
	}
	return nil
}
