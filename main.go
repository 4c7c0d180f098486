package main

import "loftdata/cmd"

func main() {
	cmd.Execute()
}
