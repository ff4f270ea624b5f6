package main

import "github.com/mselser95/polymarket-conviction/cmd"

func main() {
	cmd.Execute()
}
