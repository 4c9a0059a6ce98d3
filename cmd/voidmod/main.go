package main

import "voidmod/internal/cli"

func main() {
	cli.Execute()
}
