// chaiiwatch is a terminal rendition of the admin live view: it logs in
// with the admin code, then polls tallies, pending voters and the countdown
// until interrupted. When the voting window lapses it ends the session, the
// same way the browser dashboard does.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tilakp839-oss/chaiii/internal/client"
	"github.com/tilakp839-oss/chaiii/internal/model"
)

func main() {
	_ = godotenv.Load()

	var (
		baseURL  = flag.String("url", envOr("CHAIII_URL", "http://localhost:8080"), "base URL of the chaiid server")
		code     = flag.String("code", envOr("CHAIII_ADMIN_CODE", "ADMIN001"), "admin employee code")
		duration = flag.Duration("duration", 10*time.Minute, "voting window length, for the countdown")
		interval = flag.Duration("interval", time.Second, "poll interval")
	)
	flag.Parse()

	c := client.New(*baseURL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	admin, err := c.Login(ctx, *code, "", model.RoleAdmin)
	if err != nil {
		log.Fatalf("admin login failed: %v", err)
	}
	log.Printf("logged in as %s (%s), polling %s every %s", admin.Name, admin.EmployeeID, *baseURL, *interval)

	watcher := client.NewAdminWatcher(c, admin, *duration, *interval, printView)
	watcher.Run(ctx)

	log.Println("chaiiwatch stopped")
}

func printView(v client.AdminView) {
	if v.Session == nil {
		fmt.Println("no active session")
		return
	}

	pending := make([]string, len(v.Pending))
	for i, u := range v.Pending {
		pending[i] = u.Name
	}
	fmt.Printf("session %d | coffee %d : tea %d | %s left | pending: %s\n",
		v.Session.ID, v.CoffeeCount, v.TeaCount,
		v.Remaining.Round(time.Second),
		strings.Join(pending, ", "))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
