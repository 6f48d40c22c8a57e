// Package main provides the entrypoint for the LeaguePulse monitor.
package main

import "github.com/leaguepulse/leaguepulse/internal/cli"

func main() {
	cli.Execute()
}
