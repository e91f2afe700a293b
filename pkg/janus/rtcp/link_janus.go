//go:build !janus_testgateway

package rtcp

/*
#cgo LDFLAGS: -Wl,--unresolved-symbols=ignore-all
*/
import "C"
