package main

import "github.com/jaeyoung0509/meltdown/internal/cli"

func main() {
	cli.Execute()
}
