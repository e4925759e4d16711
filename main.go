package main

import "batchrun/cmd"

func main() {
	cmd.Execute()
}
