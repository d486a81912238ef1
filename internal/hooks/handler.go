package hooks

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Handle reads an Event from stdin, dispatches it to the handler for event
// and writes the Output to stdout. Failures are reported on stderr only.
func Handle(event string, stdin io.Reader) {
	if err := Run(NewClient(), event, stdin, os.Stdout); err != nil {
		ExitError(err)
	}
}

// Run is Handle with explicit collaborators.
func Run(client *Client, event string, stdin io.Reader, stdout io.Writer) error {
	var input Event
	if err := json.NewDecoder(stdin).Decode(&input); err != nil {
		return fmt.Errorf("decode stdin: %w", err)
	}

	// Degrade gracefully if the server is down
	if !client.Healthy() {
		return WriteOutput(stdout, Output{Event: event, Note: "server unavailable"})
	}

	var (
		out Output
		err error
	)
	switch event {
	case "kill":
		out, err = handleKill(client, &input)
	case "join":
		out, err = handleJoin(client, &input)
	case "destroy":
		out, err = handleDestroy(client, &input)
	default:
		return fmt.Errorf("unknown hook event: %s", event)
	}
	if err != nil {
		return err
	}
	out.Event = event
	return WriteOutput(stdout, out)
}
