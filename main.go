package main

import "github.com/kozaktomas/media-dedup/cmd"

func main() {
	cmd.Execute()
}
