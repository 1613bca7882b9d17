package main

import "buzzy/internal/cli"

func main() {
	cli.Main()
}
