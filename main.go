package main

import (
	"fmt"

	"github.com/atsv3/resilience-core/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
