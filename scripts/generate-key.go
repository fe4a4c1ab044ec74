// Package main is a development utility that generates a JWT signing secret
// suitable for CHB_JWT_SECRET. It prints the secret and a ready-to-paste
// export line so developers can seed a local environment without reaching for
// openssl. Generate production secrets through your secret manager instead.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
)

func main() {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		log.Fatal(err)
	}

	secret := hex.EncodeToString(randomBytes)
	fmt.Printf("Secret: %s\n\n", secret)
	fmt.Printf("export CHB_JWT_SECRET=%s\n", secret)
}
