package main

import "github.com/kozaktomas/worker-attendance/cmd"

func main() {
	cmd.Execute()
}
