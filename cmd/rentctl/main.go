// Command rentctl is a terminal front end for the rentwheels marketplace.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"rentwheels/internal/apierr"
	"rentwheels/internal/booking"
	"rentwheels/internal/client"
	"rentwheels/internal/platform/logging"
	"rentwheels/internal/session"
)

const defaultAPIURL = "http://localhost:9000"

type app struct {
	api     *client.Client
	manager *session.Manager
	guard   *session.Guard
	gate    *booking.Gate
	out     io.Writer
	logger  *slog.Logger
}

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"signup":          {"create an account: -email -password [-name] [-photo]", runSignUp},
	"signin":          {"sign in: -email -password", runSignIn},
	"signin-google":   {"sign in with Google in the browser", runSignInGoogle},
	"signout":         {"sign out and forget the stored session", runSignOut},
	"whoami":          {"show the signed-in identity", runWhoAmI},
	"profile":         {"update profile: [-name] [-photo]", runProfile},
	"cars":            {"list cars: [-category] [-status] [-q] [-sort newest|price_asc|price_desc] [-limit]", runCars},
	"car":             {"show one car: <car-id>", runCar},
	"add-car":         {"publish a listing: -name -category -price -image [-model] [-location] [-description] [-features a,b]", runAddCar},
	"my-cars":         {"list your listings: [-provider email]", runMyCars},
	"import-cars":     {"publish listings from CSV: <file.csv> [-provider email]", runImportCars},
	"book":            {"book a car: <car-id> [-email] [-comment] [-start YYYY-MM-DD] [-end YYYY-MM-DD]", runBook},
	"cancel":          {"cancel a booking: <booking-id>", runCancel},
	"my-bookings":     {"list your bookings: [-email]", runMyBookings},
	"bookings":        {"list all bookings (admin): [-page] [-limit]", runAllBookings},
	"export-bookings": {"export all bookings as CSV (admin): [-o file]", runExportBookings},
	"users":           {"list users (admin)", runUsers},
	"set-role":        {"change a user's role (admin): <email> <user|admin>", runSetRole},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		usage(stdout)
		return 0
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.NewWithWriter(stderr, getEnv("RENTWHEELS_LOG_LEVEL", "warn"))
	a, err := newApp(ctx, stdout, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	if err := cmd.run(ctx, a, args[1:]); err != nil {
		fmt.Fprintf(stderr, "error: %s\n", describe(err))
		return 1
	}
	return 0
}

func newApp(ctx context.Context, out io.Writer, logger *slog.Logger) (*app, error) {
	api, err := client.New(getEnv("RENTWHEELS_API", defaultAPIURL))
	if err != nil {
		return nil, err
	}

	storePath, err := session.DefaultStorePath()
	if err != nil {
		return nil, err
	}

	opts := []session.Option{
		session.WithTokenStore(session.NewFileStore(storePath)),
		session.WithLogger(logger),
	}
	if clientID := os.Getenv("RENTWHEELS_GOOGLE_CLIENT_ID"); clientID != "" {
		flow := client.NewGoogleFlow(clientID, os.Getenv("RENTWHEELS_GOOGLE_CLIENT_SECRET"), client.WithFlowLogger(logger))
		opts = append(opts, session.WithFederatedFlow(flow))
	}

	manager := session.NewManager(api, api, opts...)
	if _, err := manager.Restore(ctx); err != nil {
		logger.Warn("could not restore stored session", "error", err)
	}

	return &app{
		api:     api,
		manager: manager,
		guard:   session.NewGuard(manager),
		gate:    booking.NewGate(manager, api, logger),
		out:     out,
		logger:  logger,
	}, nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: rentctl <command> [flags]")
	fmt.Fprintln(w)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-16s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "environment: RENTWHEELS_API, RENTWHEELS_SESSION, RENTWHEELS_GOOGLE_CLIENT_ID, RENTWHEELS_GOOGLE_CLIENT_SECRET")
}

// describe turns an error into a message for the terminal.
func describe(err error) string {
	switch {
	case errors.Is(err, apierr.ErrUnauthenticated):
		return "you are not signed in; run `rentctl signin` first"
	case errors.Is(err, apierr.ErrAuthorizationDenied):
		return "you do not have permission to do that"
	case errors.Is(err, apierr.ErrSelfBookingDenied):
		return "you cannot book your own car"
	case errors.Is(err, apierr.ErrAlreadyBooked):
		return "this car is already booked"
	case errors.Is(err, apierr.ErrUserCancelled):
		return "sign-in was cancelled"
	case errors.Is(err, apierr.ErrNetwork):
		return "could not reach the server; check RENTWHEELS_API and try again"
	case errors.Is(err, apierr.ErrServer):
		return "the server failed to handle the request; try again later"
	}
	return err.Error()
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
