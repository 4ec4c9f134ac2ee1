package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/skyroute/booking-core/internal/utils"
	"github.com/skyroute/booking-core/pkg/jwt"
)

// generate-secrets prints fresh secrets for a local .env. With -token it
// instead mints a bearer token signed with the JWT_SECRET already configured,
// for calling the API without the identity service.
func main() {
	var (
		mintToken bool
		userID    string
		email     string
		roles     string
		ttl       time.Duration
	)
	flag.BoolVar(&mintToken, "token", false, "mint an access token using JWT_SECRET")
	flag.StringVar(&userID, "user", "", "user id for the token (random when empty)")
	flag.StringVar(&email, "email", "dev@skyroute.local", "email claim")
	flag.StringVar(&roles, "roles", "customer", "comma separated roles, e.g. customer,agent")
	flag.DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	if mintToken {
		printToken(userID, email, roles, ttl)
		return
	}

	jwtSecret, merchantKey, err := utils.GenerateLocalSecrets()
	if err != nil {
		log.Fatalf("Failed to generate secrets: %v", err)
	}

	fmt.Println("Add these to your .env file:")
	fmt.Println()
	fmt.Printf("JWT_SECRET=%s\n", jwtSecret)
	fmt.Printf("PAYMENT_MERCHANT_KEY=%s\n", merchantKey)
	fmt.Println()
	fmt.Println("Keep these out of version control.")
}

func printToken(userID, email, roles string, ttl time.Duration) {
	_ = godotenv.Load()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	issuer := os.Getenv("JWT_ISSUER")
	if issuer == "" {
		issuer = "skyroute-identity"
	}

	id := uuid.New()
	if userID != "" {
		parsed, err := uuid.Parse(userID)
		if err != nil {
			log.Fatalf("invalid -user: %v", err)
		}
		id = parsed
	}

	var roleList []string
	for _, r := range strings.Split(roles, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roleList = append(roleList, r)
		}
	}

	token, err := jwt.NewService(secret, issuer, ttl).GenerateAccessToken(id, email, roleList)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}

	fmt.Printf("user_id=%s roles=%s expires_in=%s\n", id, strings.Join(roleList, ","), ttl)
	fmt.Println(token)
}
