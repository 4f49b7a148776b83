package main

import "github.com/podvid/podvid/internal/cli"

func main() {
	cli.Main()
}
