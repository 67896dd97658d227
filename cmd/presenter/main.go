// Package main runs the presenter dashboard: a live terminal view of one session.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
