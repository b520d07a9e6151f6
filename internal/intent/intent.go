// Package intent classifies incoming chat messages so the orchestrator
// knows which retrieval backends to consult. Cheap keyword heuristics
// handle the common cases; a short bounded model call breaks ties.
package intent

import "fmt"

// Intent is the routed category of a message.
type Intent int

const (
	// General is plain conversation needing no retrieval.
	General Intent = iota
	// Product is a catalog question served by vector search.
	Product
	// Outlet is a store/location question served by structured search.
	Outlet
	// Ambiguous means both backends should be consulted.
	Ambiguous
)

func (i Intent) String() string {
	switch i {
	case General:
		return "general"
	case Product:
		return "product"
	case Outlet:
		return "outlet"
	case Ambiguous:
		return "ambiguous"
	default:
		return fmt.Sprintf("intent(%d)", int(i))
	}
}

// MarshalText lets Intent render as its name in JSON responses.
func (i Intent) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// Result is a classification with its confidence in [0,1].
type Result struct {
	Intent     Intent
	Confidence float64
}
