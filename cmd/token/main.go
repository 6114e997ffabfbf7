// Command token issues an API token for the admin endpoints, signed with
// the server's SECRET_KEY.
//
//	token -user 17 -workspace 4 -ttl 24h
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/pkg/utils"
)

func main() {
	userID := flag.String("user", "", "user id the token acts as")
	workspaceID := flag.Int64("workspace", 0, "workspace the token is scoped to")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded", "error", err)
	}

	if *userID == "" || *workspaceID <= 0 {
		fmt.Fprintln(os.Stderr, "both -user and -workspace are required")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.LoadConfig()
	if cfg.SecretKey == "" {
		fmt.Fprintln(os.Stderr, "SECRET_KEY is not set")
		os.Exit(1)
	}

	token, err := utils.GenerateToken(cfg.SecretKey, *userID, *workspaceID, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign token:", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
