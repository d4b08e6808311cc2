package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/glrecon_backend/utils"
)

// Prints a bcrypt hash for access.yaml or SHARED_PASSWORD_HASH. The password
// comes from the first argument, or stdin when there is none.
func main() {
	var password string
	if len(os.Args) > 1 {
		password = os.Args[1]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fmt.Fprintln(os.Stderr, "usage: hash-password <password>  (or pipe it on stdin)")
			os.Exit(1)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		fmt.Fprintln(os.Stderr, "password must not be empty")
		os.Exit(1)
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
