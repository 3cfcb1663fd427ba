// cmd/membercli/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"memberledger/internal/clients"
	"memberledger/internal/membership"
)

func main() {
	_ = godotenv.Load()

	endpoint := flag.String("endpoint", envOr("MEMBERLEDGER_ENDPOINT", "http://localhost:8080/submit"), "submission endpoint URL")
	timeout := flag.Duration("timeout", 15*time.Second, "request timeout")

	var r membership.MemberRecord
	var phone, reference string
	flag.StringVar(&r.Salutation, "anrede", "", "salutation (Herr, Frau, ...)")
	flag.StringVar(&r.LastName, "name", "", "last name")
	flag.StringVar(&r.FirstName, "vorname", "", "first name")
	flag.StringVar(&r.Address, "adresse", "", "street address")
	flag.StringVar(&r.PostalCode, "plz", "", "postal code")
	flag.StringVar(&r.City, "ort", "", "city")
	flag.StringVar(&r.Email, "email", "", "email address")
	flag.StringVar(&phone, "tel", "", "phone number")
	flag.StringVar(&r.Status, "status", clients.DefaultStatus, "membership status code")
	flag.StringVar(&r.Amount, "betrag", "", "fee amount")
	flag.StringVar(&r.JoinYear, "beitritt", "", "join year (defaults to the current year)")
	flag.StringVar(&reference, "referenz", "", "reference")
	flag.Parse()

	if phone != "" {
		r.Phone = &phone
	}
	if reference != "" {
		r.Reference = &reference
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := clients.NewSubmissionClient(*endpoint, nil)
	msg, err := client.Submit(ctx, r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✅ %s\n", msg)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
