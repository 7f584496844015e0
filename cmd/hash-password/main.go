// Command hash-password prints a bcrypt hash for seeding users.password_hash.
// The password is read from the first argument or, if absent, from stdin.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/session-server-go/internal/util"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	password := ""
	if len(os.Args) > 1 {
		password = os.Args[1]
	} else {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			log.Fatal().Err(err).Msg("failed to read password from stdin")
		}
		password = strings.TrimRight(line, "\r\n")
	}

	if password == "" {
		log.Fatal().Msg("usage: hash-password <password>")
	}

	hash, err := util.HashPassword(password)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to hash password")
	}

	fmt.Println(hash)
}
