package main

import "github.com/mergedoc/mergedoc/cmd"

func main() {
	cmd.Execute()
}
