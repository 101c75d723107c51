// Package main provides a pointer to dinorisc's real entry point.
// dinorisc translates RV64I ELF binaries to AArch64 and runs them.
//
// For the full CLI, use: go run ./cmd/dinorisc
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("dinorisc - RISC-V to AArch64 dynamic binary translator")
	fmt.Println("")
	fmt.Println("Usage: dinorisc <binary> [function]")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/dinorisc' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/dinorisc' instead.")
	}
}
