package main

import "github.com/chainfill/chainfill/internal/cli"

func main() {
	cli.Execute()
}
