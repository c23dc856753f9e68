// Copyright © 2020 Jonathan Whitaker <jonathan@whitaker.io>

package main

import "github.com/whitaker-io/chewdata/cmd/cmd"

func main() {
	cmd.Execute()
}
