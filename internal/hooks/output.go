package hooks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Maxopoly/ExilePearl/internal/pearl"
)

// Output is written to stdout for the plugin to act on.
type Output struct {
	Event  string       `json:"event"`
	Exiled bool         `json:"exiled"`
	Freed  bool         `json:"freed,omitempty"`
	Pearl  *pearl.Pearl `json:"pearl,omitempty"`
	Note   string       `json:"note,omitempty"`
}

// WriteOutput encodes out as one JSON line.
func WriteOutput(w io.Writer, out Output) error {
	return json.NewEncoder(w).Encode(out)
}

// ExitError logs to stderr and exits 0 (hooks must never crash the game server).
func ExitError(err error) {
	fmt.Fprintf(os.Stderr, "exilepearl hook: %v\n", err)
	os.Exit(0)
}
