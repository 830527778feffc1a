package main

import "github.com/touchsung/trading-bot/internal/cli"

func main() {
	cli.Execute()
}
