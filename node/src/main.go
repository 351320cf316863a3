package main

import "github.com/sajjad-MoBe/kvserver/node/src/cmd"

func main() {
	cmd.ExecuteServer()
}
