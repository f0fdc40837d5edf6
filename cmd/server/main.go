package main

import "github.com/smart-navigator/server/cmd/server/cmd"

func main() {
	cmd.Execute()
}
