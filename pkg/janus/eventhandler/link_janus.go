//go:build !janus_testgateway

package eventhandler

/*
#cgo LDFLAGS: -Wl,--unresolved-symbols=ignore-all
*/
import "C"
