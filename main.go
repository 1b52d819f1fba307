package main

import "github.com/caliopendata/datasync/cmd"

func main() {
	cmd.Execute()
}
