package main

import "github.com/tidechain/tide/app/tooling/admin/commands"

func main() {
	commands.Execute()
}
