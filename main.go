package main

import "github.com/medsourcepro/msapi/cmd"

func main() {
	cmd.Execute()
}
