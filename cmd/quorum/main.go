package main

import "github.com/quorum-project/quorum/internal/cli"

func main() {
	cli.Execute()
}
