// Command keygen creates the settings encryption key and encrypts secret
// channel settings for manual database seeding.
//
//	keygen                      print a new key
//	keygen -key K -encrypt V    print V encrypted under K
//	keygen -key K -decrypt C    print the plaintext of C
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/hostpanel/backend/pkg/utils/crypto"
)

func main() {
	key := flag.String("key", os.Getenv("HOSTPANEL_SECURITY_ENCRYPTION_KEY"), "encryption key (defaults to HOSTPANEL_SECURITY_ENCRYPTION_KEY)")
	encrypt := flag.String("encrypt", "", "value to encrypt")
	decrypt := flag.String("decrypt", "", "value to decrypt")
	flag.Parse()

	switch {
	case *encrypt != "" && *decrypt != "":
		log.Fatal("use either -encrypt or -decrypt, not both")
	case *encrypt != "":
		out, err := crypto.Encrypt(*encrypt, *key)
		if err != nil {
			log.Fatalf("encrypt: %v", err)
		}
		fmt.Println(out)
	case *decrypt != "":
		out, err := crypto.Decrypt(*decrypt, *key)
		if err != nil {
			log.Fatalf("decrypt: %v", err)
		}
		fmt.Println(out)
	default:
		k, err := crypto.GenerateKey()
		if err != nil {
			log.Fatalf("generate key: %v", err)
		}
		fmt.Println(k)
	}
}
