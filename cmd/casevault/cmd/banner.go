package cmd

import (
	"fmt"
)

const banner = `
   _____                __      __         _ _
  / ____|               \ \    / /        | | |
 | |     __ _ ___  ___   \ \  / /_ _ _   _| | |_
 | |    / _` + "`" + ` / __|/ _ \   \ \/ / _` + "`" + ` | | | | | __|
 | |___| (_| \__ \  __/    \  / (_| | |_| | | |_
  \_____\__,_|___/\___|     \/ \__,_|\__,_|_|\__|

`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Case Key Management Service - Version %s\x1b[0m\n\n", Version)
}
