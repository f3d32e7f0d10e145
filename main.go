package main

import "github.com/jcalado/lumina-sub001/cmd"

func main() {
	cmd.Execute()
}
