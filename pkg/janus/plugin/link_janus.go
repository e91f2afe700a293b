//go:build !janus_testgateway

package plugin

/*
#cgo LDFLAGS: -Wl,--unresolved-symbols=ignore-all
*/
import "C"
