package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/threepl_backend/utils"
)

// Prints a bearer token for operators and automation; API_SECRET must match the server's.
func main() {
	actor := flag.String("actor", "", "Required: actor id recorded on writes")
	role := flag.String("role", "operator", "Role claim (operator, admin)")
	flag.Parse()

	if strings.TrimSpace(*actor) == "" {
		fmt.Fprintln(os.Stderr, "--actor is required")
		os.Exit(1)
	}
	token, err := utils.JwtGenerate(strings.TrimSpace(*actor), *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
