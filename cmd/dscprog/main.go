package main

import "github.com/OpenTraceLab/OpenTraceDSC/cmd/dscprog/cmd"

func main() {
	cmd.Execute()
}
