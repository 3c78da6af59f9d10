package main

import "github.com/bryanchriswhite/pulsecore/cmd/pulsecore/commands"

func main() {
	commands.Execute()
}
