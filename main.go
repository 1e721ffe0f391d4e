package main

import "github.com/theirongolddev/ccdash/cmd"

func main() {
	cmd.Execute()
}
