package main

import "github.com/dkeye/OnAir/internal/cli"

func main() {
	cli.Execute()
}
