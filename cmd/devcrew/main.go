package main

import "github.com/devcrew/devcrew/internal/cli"

func main() {
	cli.Execute()
}
