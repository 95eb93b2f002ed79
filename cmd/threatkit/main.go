package main

import "github.com/straja-ai/threatkit/internal/cli"

func main() {
	cli.Execute()
}
