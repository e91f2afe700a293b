// Command janus-evh-journal builds the event journal as a Janus event handler:
//
//	go build -buildmode=c-shared -o libjanus_gojournal.so ./cmd/janus-evh-journal
package main

import (
	"github.com/arqut/janus-plugin-go/pkg/handlers/journal"
	"github.com/arqut/janus-plugin-go/pkg/janus/eventhandler"
)

func init() {
	// Init replaces this with the configured mask
	eventhandler.Register(journal.New(), journal.Metadata, eventhandler.All)
}

func main() {}
