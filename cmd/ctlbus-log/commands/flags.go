package commands

import (
	"fmt"
	"strings"

	"github.com/ctlbus/ctlbus-go/pkg/log"
)

// ParseLayerFlag parses a layer name (transport, wire, engine).
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return log.LayerTransport, nil
	case "wire":
		return log.LayerWire, nil
	case "engine":
		return log.LayerEngine, nil
	default:
		return 0, fmt.Errorf("unknown layer: %s (valid: transport, wire, engine)", s)
	}
}

// ParseCategoryFlag parses a category name (message, heartbeat, route,
// state, error).
func ParseCategoryFlag(s string) (log.Category, error) {
	c, ok := log.ParseCategory(strings.ToUpper(s))
	if !ok {
		return 0, fmt.Errorf("unknown category: %s (valid: message, heartbeat, route, state, error)", s)
	}
	return c, nil
}
