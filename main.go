package main

import "github.com/xrsl/solvx/cmd"

func main() {
	cmd.Execute()
}
