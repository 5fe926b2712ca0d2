// staff-token mints an HS256 dashboard token for local use and, with -check,
// calls the stats endpoint with it.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/config"
)

func main() {
	var (
		baseURL = flag.String("base-url", config.String("BASE_URL", "http://localhost:8080"), "booking-service base url")
		subject = flag.String("sub", config.String("STAFF_SUBJECT", "staff@local"), "token subject")
		role    = flag.String("role", auth.RoleStaff, "staff or owner")
		ttl     = flag.Duration("ttl", 12*time.Hour, "token lifetime")
		check   = flag.Bool("check", false, "call /api/v1/appointments/stats with the token")
	)
	flag.Parse()

	secret, err := config.RequiredString("STAFF_JWT_SECRET")
	if err != nil {
		fatal(err.Error())
	}
	if *role != auth.RoleStaff && *role != auth.RoleOwner {
		fatal("role must be staff or owner")
	}

	now := time.Now()
	token, err := auth.SignHS256(auth.Claims{
		Sub:  *subject,
		Role: *role,
		Iat:  now.Unix(),
		Exp:  now.Add(*ttl).Unix(),
	}, secret)
	if err != nil {
		fatal(err.Error())
	}
	fmt.Println(token)
	if !*check {
		return
	}

	req, err := http.NewRequest(http.MethodGet, strings.TrimRight(*baseURL, "/")+"/api/v1/appointments/stats", nil)
	if err != nil {
		fatal(err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+token)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fatal(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	fmt.Fprintf(os.Stderr, "status=%d body=%s\n", resp.StatusCode, strings.TrimSpace(string(body)))
	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
