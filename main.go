package main

import "github.com/edgeflare/sandman/cmd/sandman"

func main() {
	sandman.Main()
}
