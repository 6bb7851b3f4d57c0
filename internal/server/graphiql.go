package server

import (
	"bytes"
	_ "embed"
)

//go:embed graphiql.html
var graphiqlHTML []byte

// graphiqlPage renders the IDE wired to streamPath for subscriptions.
func graphiqlPage(streamPath string) []byte {
	return bytes.ReplaceAll(graphiqlHTML, []byte("{{STREAM_PATH}}"), []byte(streamPath))
}
