package main

import "github.com/alloctrace/cmd/cli/cmd"

func main() {
	cmd.Execute()
}
