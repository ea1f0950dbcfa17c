package main

import "github.com/vietddude/inventory/internal/cli"

func main() {
	cli.Execute()
}
