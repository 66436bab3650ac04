package main

import "github.com/camctl/gigecam/cmd/gigecam/commands"

func main() {
	commands.Execute()
}
