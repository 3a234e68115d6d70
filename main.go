package main

import "github.com/oddslab/marketcore/cmd"

func main() {
	cmd.Execute()
}
