package main

import "github.com/ValentinKolb/kvproxy/cmd"

func main() {
	cmd.Execute()
}
