package main

import (
	"churchrank/cmd/churchrank/commands"
	"churchrank/lib/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
