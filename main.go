package main

import "github.com/andresmejia3/moodsense/cmd"

func main() {
	cmd.Execute()
}
