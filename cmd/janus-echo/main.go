// Command janus-echo builds the echo plugin as a Janus shared object:
//
//	go build -buildmode=c-shared -o libjanus_goecho.so ./cmd/janus-echo
package main

import (
	"github.com/arqut/janus-plugin-go/pkg/janus/plugin"
	"github.com/arqut/janus-plugin-go/pkg/plugins/echo"
)

func init() {
	plugin.Register(echo.New(), echo.Metadata)
}

func main() {}
