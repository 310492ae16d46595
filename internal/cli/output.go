package cli

import (
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/45Drives/studio-share-sub000/internal/events"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// writeEvents writes each event as one JSON object per line until ch is
// closed. Encoding errors drop the event.
func writeEvents(w io.Writer, ch <-chan events.Event) {
	enc := json.NewEncoder(w)
	for ev := range ch {
		_ = enc.Encode(ev)
	}
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
