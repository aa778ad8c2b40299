package main

import "github.com/stephnangue/edgegate/cmd"

func main() {
	cmd.Execute()
}
