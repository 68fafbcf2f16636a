package main

import "github.com/dangazineu/ghaexec/cmd/ghaexec/internal"

func main() {
	internal.Execute()
}
