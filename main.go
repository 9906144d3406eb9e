package main

import "selfheal/presentation/cli"

func main() {
	cli.Execute()
}
