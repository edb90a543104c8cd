//go:build windows
// +build windows

package main

import "os"

func init() {
	shutdownSignals = []os.Signal{os.Interrupt}
}
