// agentwatch — inspect drift telemetry recorded by embedded monitors.
package main

import "github.com/Tanmay-24/agentwatch/internal/cli"

func main() {
	cli.Execute()
}
