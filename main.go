package main

import "github.com/frahmantamala/estore-payments/cmd"

func main() {
	cmd.Execute()
}
