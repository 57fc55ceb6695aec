package main

import (
	"github.com/hulrap/TradingBot-sub016/internal/cli"
)

func main() {
	cli.Execute()
}
