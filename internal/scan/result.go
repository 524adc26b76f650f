package scan

import (
	"github.com/fekuna/omnipos-offline/internal/api"
	"github.com/fekuna/omnipos-offline/internal/model"
)

type Outcome int

const (
	Resolved Outcome = iota
	Ambiguous
	NotFound
	Failed
	// Dropped scans were debounced or arrived while another scan was in flight.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Resolved:
		return "resolved"
	case Ambiguous:
		return "ambiguous"
	case NotFound:
		return "not_found"
	case Failed:
		return "error"
	case Dropped:
		return "dropped"
	}
	return "unknown"
}

type Source string

const (
	SourceStructured Source = "structured"
	SourceCustom     Source = "custom_barcode"
	SourceCache      Source = "cache"
	SourceNetwork    Source = "network"
	SourceStore      Source = "store"
	SourceSelection  Source = "selection"
)

const (
	DropDebounce = "debounce"
	DropBusy     = "busy"
	DropEmpty    = "empty"
)

// Result is what one scan resolved to.
type Result struct {
	Outcome Outcome
	Code    string
	Mode    model.Mode
	Item    *model.CatalogItem
	Source  Source

	// Ambiguous
	Matches []api.Match

	// NotFound
	GS1             *model.GS1Data
	CreateSuggested bool

	Err        error
	DropReason string
}
