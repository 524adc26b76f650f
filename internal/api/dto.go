package api

import (
	"encoding/json"

	"github.com/fekuna/omnipos-offline/internal/model"
)

const (
	LookupStatusSuccess = "success"
	LookupStatusPartial = "partial"
	LookupStatusError   = "error"
)

type LookupRequest struct {
	Barcode string     `json:"barcode"`
	Mode    model.Mode `json:"mode"`
}

type Match struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Brand      string  `json:"brand,omitempty"`
	Confidence float64 `json:"confidence"`
	GTIN       string  `json:"gtin,omitempty"`
}

type LookupResponse struct {
	Status      string             `json:"status"`
	Item        *model.CatalogItem `json:"item,omitempty"`
	Matches     []Match            `json:"matches,omitempty"`
	ParsedData  *model.GS1Data     `json:"parsed_data,omitempty"`
	LookupType  string             `json:"lookup_type,omitempty"`
	Suggestions json.RawMessage    `json:"suggestions,omitempty"`
	Message     string             `json:"message,omitempty"`
}

// InitialData is the consolidated catalog snapshot. Records are kept raw so
// fields unknown to the client survive the round trip into the local store.
type InitialData struct {
	Inventory          []json.RawMessage `json:"inventory"`
	Wholesale          []json.RawMessage `json:"wholesale"`
	Customers          []json.RawMessage `json:"customers"`
	WholesaleCustomers []json.RawMessage `json:"wholesale_customers"`
	Suppliers          []json.RawMessage `json:"suppliers"`
}

type SyncRequest struct {
	PendingActions []model.PendingAction `json:"pendingActions"`
}

type CartAddRequest struct {
	ItemID         int64  `json:"item_id"`
	Quantity       int    `json:"quantity"`
	Unit           string `json:"unit,omitempty"`
	DiscountAmount string `json:"discount_amount,omitempty"`
}
