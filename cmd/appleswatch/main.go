package main

import "apples-watch/internal/cli"

func main() {
	cli.Execute()
}
