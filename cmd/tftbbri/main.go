package main

import "github.com/shintothemars/tft-bbri/internal/cli"

func main() {
	cli.Execute()
}
