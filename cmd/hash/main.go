// Package main is a utility for generating bcrypt hashes of hub passwords.
// The portal stores only bcrypt hashes — never the raw password — so this tool
// is used when manually seeding or repairing a password-gated hub in the
// database without going through the staff API.
package main

import (
	"fmt"
	"os"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: hash <password>")
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(os.Args[1]), bcrypt.DefaultCost)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(hash))
}
