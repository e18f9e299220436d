package main

import "github.com/ArowuTest/lottery-odds/internal/cli"

func main() {
	cli.Execute()
}
