package queue

import (
	"strings"

	"github.com/fekuna/omnipos-offline/internal/model"
)

const (
	CategoryInventory  = "inventory"
	CategorySales      = "sales"
	CategoryCustomers  = "customers"
	CategorySuppliers  = "suppliers"
	CategoryWholesale  = "wholesale"
	CategoryReceipts   = "receipts"
	CategoryDispensing = "dispensing"
	CategoryCart       = "cart"
)

type route struct {
	substrings []string
	category   string
}

// Checked in order; the first rule with a matching substring wins.
// "wholesale" contains "sale" and so must be tested first.
var routes = []route{
	{[]string{"item", "inventory"}, CategoryInventory},
	{[]string{"wholesale"}, CategoryWholesale},
	{[]string{"sale"}, CategorySales},
	{[]string{"customer"}, CategoryCustomers},
	{[]string{"supplier"}, CategorySuppliers},
	{[]string{"receipt"}, CategoryReceipts},
	{[]string{"dispensing"}, CategoryDispensing},
	{[]string{"cart"}, CategoryCart},
}

// Categories lists every sync category in routing order.
func Categories() []string {
	out := make([]string, len(routes))
	for i, r := range routes {
		out[i] = r.category
	}
	return out
}

// CategoryFor maps an action type onto its sync category.
func CategoryFor(actionType string) (string, bool) {
	t := strings.ToLower(actionType)
	for _, r := range routes {
		for _, s := range r.substrings {
			if strings.Contains(t, s) {
				return r.category, true
			}
		}
	}
	return "", false
}

// Endpoint is the server path a category's batch is posted to.
func Endpoint(category string) string {
	return "/api/" + category + "/sync/"
}

// GroupByCategory buckets actions by sync category, keeping their order.
// Actions whose type matches no category are returned separately and are
// not delivered.
func GroupByCategory(actions []model.PendingAction) (map[string][]model.PendingAction, []model.PendingAction) {
	groups := make(map[string][]model.PendingAction)
	var unrouted []model.PendingAction
	for _, a := range actions {
		cat, ok := CategoryFor(a.ActionType)
		if !ok {
			unrouted = append(unrouted, a)
			continue
		}
		groups[cat] = append(groups[cat], a)
	}
	return groups, unrouted
}
