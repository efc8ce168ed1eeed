package main

import "github.com/nvr-ai/go-detect/cmd"

func main() {
	cmd.Execute()
}
