package main

import "github.com/qobs-build/qobs/cmd"

func main() {
	cmd.Execute()
}
