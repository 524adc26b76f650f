package queue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-offline/internal/apperror"
	"github.com/fekuna/omnipos-offline/internal/model"
)

const (
	TypeAddItem          = "add_item"
	TypeUpdateItem       = "update_item"
	TypeDeleteItem       = "delete_item"
	TypeCreateItem       = "create_item"
	TypeLookupWhenOnline = "lookup_when_online"
	TypeAddToCart        = "add_to_cart"
	TypeSale             = "sale"
	TypeCustomer         = "customer"
	TypeSupplier         = "supplier"
	TypeReceipt          = "receipt"
	TypeDispensing       = "dispensing"
)

// Payload is the typed body of a pending action.
type Payload interface {
	ActionType() string
	Validate() error
}

// CreateItem asks the server to create a catalog entry for an unknown code.
type CreateItem struct {
	Barcode string         `json:"barcode"`
	Mode    model.Mode     `json:"mode"`
	Name    string         `json:"name,omitempty"`
	GS1     *model.GS1Data `json:"parsed_data,omitempty"`
}

func (CreateItem) ActionType() string { return TypeCreateItem }

func (p CreateItem) Validate() error {
	if strings.TrimSpace(p.Barcode) == "" {
		return apperror.Validation("queue.create_item", "barcode is required")
	}
	return validMode("queue.create_item", p.Mode)
}

type AddItem struct {
	Mode model.Mode        `json:"mode"`
	Item model.CatalogItem `json:"item"`
}

func (AddItem) ActionType() string { return TypeAddItem }

func (p AddItem) Validate() error {
	if strings.TrimSpace(p.Item.Name) == "" {
		return apperror.Validation("queue.add_item", "item name is required")
	}
	return validMode("queue.add_item", p.Mode)
}

type UpdateItem struct {
	Mode model.Mode        `json:"mode"`
	Item model.CatalogItem `json:"item"`
}

func (UpdateItem) ActionType() string { return TypeUpdateItem }

func (p UpdateItem) Validate() error {
	if p.Item.ID == 0 {
		return apperror.Validation("queue.update_item", "item id is required")
	}
	return validMode("queue.update_item", p.Mode)
}

type DeleteItem struct {
	Mode model.Mode `json:"mode"`
	ID   int64      `json:"id"`
}

func (DeleteItem) ActionType() string { return TypeDeleteItem }

func (p DeleteItem) Validate() error {
	if p.ID == 0 {
		return apperror.Validation("queue.delete_item", "item id is required")
	}
	return validMode("queue.delete_item", p.Mode)
}

// LookupWhenOnline defers a barcode lookup until the server is reachable.
type LookupWhenOnline struct {
	Barcode string     `json:"barcode"`
	Mode    model.Mode `json:"mode"`
}

func (LookupWhenOnline) ActionType() string { return TypeLookupWhenOnline }

func (p LookupWhenOnline) Validate() error {
	if strings.TrimSpace(p.Barcode) == "" {
		return apperror.Validation("queue.lookup_when_online", "barcode is required")
	}
	return validMode("queue.lookup_when_online", p.Mode)
}

type AddToCart struct {
	model.CartEntry
}

func (AddToCart) ActionType() string { return TypeAddToCart }

func (p AddToCart) Validate() error {
	if p.ItemID == 0 {
		return apperror.Validation("queue.add_to_cart", "item id is required")
	}
	if p.Quantity <= 0 {
		return apperror.Validation("queue.add_to_cart", "quantity must be positive, got %d", p.Quantity)
	}
	return validMode("queue.add_to_cart", p.Mode)
}

// Record carries an opaque JSON object for categories whose body the client
// does not interpret, such as sales, receipts and customers.
type Record struct {
	Type string
	Body json.RawMessage
}

// NewRecord marshals body into a Record of the given action type.
func NewRecord(actionType string, body any) (Record, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return Record{}, apperror.Validation("queue.record", "marshal %s body: %v", actionType, err)
	}
	return Record{Type: actionType, Body: b}, nil
}

func (r Record) ActionType() string { return r.Type }

func (r Record) Validate() error {
	if strings.TrimSpace(r.Type) == "" {
		return apperror.Validation("queue.record", "action type is required")
	}
	trimmed := bytes.TrimSpace(r.Body)
	if len(trimmed) == 0 || trimmed[0] != '{' || !json.Valid(trimmed) {
		return apperror.Validation("queue.record", "%s body must be a JSON object", r.Type)
	}
	return nil
}

func (r Record) MarshalJSON() ([]byte, error) {
	return r.Body, nil
}

func validMode(op string, m model.Mode) error {
	if !m.Valid() {
		return apperror.Validation(op, "invalid mode %q", m)
	}
	return nil
}

var registry = map[string]func() Payload{
	TypeCreateItem:       func() Payload { return &CreateItem{} },
	TypeAddItem:          func() Payload { return &AddItem{} },
	TypeUpdateItem:       func() Payload { return &UpdateItem{} },
	TypeDeleteItem:       func() Payload { return &DeleteItem{} },
	TypeLookupWhenOnline: func() Payload { return &LookupWhenOnline{} },
	TypeAddToCart:        func() Payload { return &AddToCart{} },
}

// DecodePayload returns the typed payload of a stored action. Types without a
// dedicated payload decode into a Record.
func DecodePayload(a *model.PendingAction) (Payload, error) {
	newPayload, ok := registry[a.ActionType]
	if !ok {
		return Record{Type: a.ActionType, Body: a.Data}, nil
	}
	p := newPayload()
	if err := json.Unmarshal(a.Data, p); err != nil {
		return nil, fmt.Errorf("decode %s payload of action %d: %w", a.ActionType, a.ID, err)
	}
	return p, nil
}
