package main

import "github.com/vibefi/vibepack/cmd"

func main() {
	cmd.Execute()
}
