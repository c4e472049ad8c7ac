/*
courier runs a store-and-forward peer and inspects its wire data.
*/
package main

import "github.com/arloliu/courier/cmd/courier/commands"

func main() {
	commands.Execute()
}
