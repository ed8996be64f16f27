package main

import "github.com/octa-computer/transfer-manager/internal/cli"

func main() {
	cli.Execute()
}
