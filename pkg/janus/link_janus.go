//go:build !janus_testgateway

package janus

// Gateway symbols are resolved by the dynamic loader when the gateway opens
// the shared object.

/*
#cgo LDFLAGS: -Wl,--unresolved-symbols=ignore-all
*/
import "C"
