package main

import "github.com/fdlab/fdlab/cmd"

func main() {
	cmd.Execute()
}
