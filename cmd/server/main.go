package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	goredis "github.com/redis/go-redis/v9"

	"github.com/emberlink/go-identity-broker/bridges/oidc"
	"github.com/emberlink/go-identity-broker/broker"
	"github.com/emberlink/go-identity-broker/internal/config"
	"github.com/emberlink/go-identity-broker/mail"
	"github.com/emberlink/go-identity-broker/ratelimit"
	"github.com/emberlink/go-identity-broker/server"
	"github.com/emberlink/go-identity-broker/storage"
	"github.com/emberlink/go-identity-broker/storage/memory"
	redisstore "github.com/emberlink/go-identity-broker/storage/redis"
	"github.com/emberlink/go-identity-broker/storage/sqlite"
	"github.com/emberlink/go-identity-broker/token"
	"github.com/emberlink/go-identity-broker/token/keys"
)

const googleIssuer = "https://accounts.google.com"

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := newStore(c)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer store.Close()

	keyManager, err := newKeyManager(c)
	if err != nil {
		return fmt.Errorf("signing keys: %w", err)
	}
	go keyManager.StartRotation(ctx)

	validator, err := newValidator(c)
	if err != nil {
		return fmt.Errorf("domain validator: %w", err)
	}

	bridges, err := newBridges(ctx, c)
	if err != nil {
		return fmt.Errorf("oidc bridges: %w", err)
	}

	mailer := mail.NewSMTPMailer(
		c.GetSmtpHost(), c.GetSmtpPort(),
		c.GetSmtpAccount(), c.GetSmtpPassword(),
		c.GetSmtpSender(), c.GetAppName(),
	)

	emailLimit := c.GetEmailRateLimit()
	domainLimit := c.GetDomainRateLimit()

	brokerService, err := broker.NewService(broker.Deps{
		Store:     store,
		Limiter:   ratelimit.New(store),
		Minter:    token.NewMinter(c.GetBaseURL(), keyManager),
		Mailer:    mailer,
		Validator: validator,
	}, c.GetBaseURL(),
		broker.WithSessionTTL(c.GetSessionTTL()),
		broker.WithCodeLength(c.GetCodeLength()),
		broker.WithRateLimits(
			broker.RateLimit{Limit: emailLimit.Limit, Window: emailLimit.Window},
			broker.RateLimit{Limit: domainLimit.Limit, Window: domainLimit.Window},
		),
		broker.WithBridges(bridges),
	)
	if err != nil {
		return fmt.Errorf("broker: %w", err)
	}

	srv, err := server.New(c, brokerService, keyManager)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

func newStore(c config.Config) (storage.Store, error) {
	switch c.GetStorageBackend() {
	case "memory":
		return memory.New(time.Minute), nil
	case "sqlite":
		return sqlite.Open(c.GetSQLitePath())
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     c.GetRedisAddr(),
			Password: c.GetRedisPassword(),
			DB:       c.GetRedisDB(),
		})
		return redisstore.New(client, c.GetAppName()), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.GetStorageBackend())
	}
}

func newKeyManager(c config.Config) (*keys.Manager, error) {
	switch c.GetKeyMode() {
	case "rotating":
		return keys.NewRotatingManager(c.GetKeyRotationInterval(), c.GetKeyGracePeriod())
	case "manual":
		pem, err := os.ReadFile(c.GetKeyFile())
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		return keys.NewManualManager(string(pem))
	default:
		return nil, fmt.Errorf("unknown key mode %q", c.GetKeyMode())
	}
}

func newValidator(c config.Config) (*broker.DomainValidator, error) {
	v := broker.NewDomainValidator()
	v.AllowedDomainsOnly = c.GetAllowedDomainsOnly()

	for _, domain := range c.GetAllowedDomains() {
		if err := v.AddAllowedDomain(domain); err != nil {
			return nil, err
		}
	}
	for _, domain := range c.GetBlockedDomains() {
		if err := v.AddBlockedDomain(domain); err != nil {
			return nil, err
		}
	}

	if path := c.GetTLDListFile(); path != "" {
		tlds, err := config.ReadStringList(path)
		if err != nil {
			return nil, err
		}
		for _, tld := range tlds {
			if err := v.AddValidTLD(tld); err != nil {
				return nil, err
			}
		}
	}
	if path := c.GetSuffixListFile(); path != "" {
		rules, err := config.ReadStringList(path)
		if err != nil {
			return nil, err
		}
		for _, rule := range rules {
			if err := v.AddValidSuffix(rule); err != nil {
				return nil, err
			}
		}
	}

	return v, nil
}

func newBridges(ctx context.Context, c config.Config) (map[string]*oidc.Bridge, error) {
	bridges := make(map[string]*oidc.Bridge)

	if clientID := c.GetGoogleClientID(); clientID != "" {
		bridge, err := oidc.New(ctx, googleIssuer, clientID, c.GetGoogleClientSecret(), c.GetBaseURL()+server.RouteCallback)
		if err != nil {
			return nil, err
		}
		bridges["gmail.com"] = bridge
		bridges["googlemail.com"] = bridge
	}

	return bridges, nil
}

func listenAndServe(server *http.Server) error {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
