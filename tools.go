//go:build tools

// Package main tracks tool dependencies used by go generate.
package main

import (
	_ "go.uber.org/mock/mockgen"
)
