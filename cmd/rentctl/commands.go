package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"rentwheels/internal/apierr"
	"rentwheels/internal/booking"
	"rentwheels/internal/client"
	"rentwheels/internal/session"
)

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// parseArgs parses flags that may appear before or after positional arguments.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, apierr.Validation("%s: %v", fs.Name(), err)
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func requireArgs(name string, args []string, n int, usage string) error {
	if len(args) != n {
		return apierr.Validation("usage: rentctl %s %s", name, usage)
	}
	return nil
}

func runSignUp(ctx context.Context, a *app, args []string) error {
	fs := newFlags("signup")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	name := fs.String("name", "", "display name")
	photo := fs.String("photo", "", "avatar URL")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	identity, err := a.manager.SignUp(ctx, *email, *password, *name, *photo)
	if err != nil {
		return err
	}
	printIdentity(a.out, identity)
	return nil
}

func runSignIn(ctx context.Context, a *app, args []string) error {
	fs := newFlags("signin")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	identity, err := a.manager.SignIn(ctx, *email, *password)
	if err != nil {
		return err
	}
	printIdentity(a.out, identity)
	return nil
}

func runSignInGoogle(ctx context.Context, a *app, _ []string) error {
	identity, err := a.manager.SignInWithFederatedProvider(ctx)
	if err != nil {
		return err
	}
	printIdentity(a.out, identity)
	return nil
}

func runSignOut(ctx context.Context, a *app, _ []string) error {
	if err := a.manager.SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "signed out")
	return nil
}

func runWhoAmI(_ context.Context, a *app, _ []string) error {
	identity, err := a.guard.RequireAuthenticated()
	if err != nil {
		return err
	}
	printIdentity(a.out, identity)
	return nil
}

func runProfile(ctx context.Context, a *app, args []string) error {
	fs := newFlags("profile")
	name := fs.String("name", "", "display name")
	photo := fs.String("photo", "", "avatar URL")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	var displayName, avatarURL *string
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			displayName = name
		case "photo":
			avatarURL = photo
		}
	})
	if displayName == nil && avatarURL == nil {
		return apierr.Validation("usage: rentctl profile [-name NAME] [-photo URL]")
	}

	identity, err := a.manager.UpdateProfile(ctx, displayName, avatarURL)
	if err != nil {
		return err
	}
	printIdentity(a.out, identity)
	return nil
}

func runCars(ctx context.Context, a *app, args []string) error {
	fs := newFlags("cars")
	var query client.CarQuery
	fs.StringVar(&query.Category, "category", "", "category filter")
	fs.StringVar(&query.Status, "status", "", "Available or Booked")
	fs.StringVar(&query.Search, "q", "", "search text")
	fs.StringVar(&query.Sort, "sort", "", "newest, price_asc or price_desc")
	fs.IntVar(&query.Limit, "limit", 0, "maximum results")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	list, err := a.api.ListCars(ctx, query)
	if err != nil {
		return err
	}
	a.gate.Track(list...)
	printCars(a.out, list)
	return nil
}

func runCar(ctx context.Context, a *app, args []string) error {
	positional, err := parseArgs(newFlags("car"), args)
	if err != nil {
		return err
	}
	if err := requireArgs("car", positional, 1, "<car-id>"); err != nil {
		return err
	}

	car, err := a.api.GetCar(ctx, positional[0])
	if err != nil {
		return err
	}
	return printJSON(a.out, car)
}

func runAddCar(ctx context.Context, a *app, args []string) error {
	if _, err := a.guard.RequireAuthenticated(); err != nil {
		return err
	}

	fs := newFlags("add-car")
	var input client.NewCar
	var features string
	fs.StringVar(&input.Name, "name", "", "car name")
	fs.StringVar(&input.Model, "model", "", "model year or trim")
	fs.StringVar(&input.Category, "category", "", "category")
	fs.Float64Var(&input.PricePerDay, "price", 0, "price per day")
	fs.StringVar(&input.Location, "location", "", "pickup location")
	fs.StringVar(&input.Image, "image", "", "image URL")
	fs.StringVar(&input.Description, "description", "", "description")
	fs.StringVar(&features, "features", "", "comma separated features")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	for _, feature := range strings.Split(features, ",") {
		if feature = strings.TrimSpace(feature); feature != "" {
			input.Features = append(input.Features, feature)
		}
	}

	car, err := a.api.CreateCar(ctx, a.manager.Token(), input)
	if err != nil {
		return err
	}
	return printJSON(a.out, car)
}

func runMyCars(ctx context.Context, a *app, args []string) error {
	identity, err := a.guard.RequireAuthenticated()
	if err != nil {
		return err
	}

	fs := newFlags("my-cars")
	provider := fs.String("provider", identity.Email, "provider email (admins only for others)")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	list, err := a.api.MyCars(ctx, a.manager.Token(), *provider)
	if err != nil {
		return err
	}
	printCars(a.out, list)
	return nil
}

func runImportCars(ctx context.Context, a *app, args []string) error {
	if _, err := a.guard.RequireAuthenticated(); err != nil {
		return err
	}

	fs := newFlags("import-cars")
	provider := fs.String("provider", "", "provider email (admins only for others)")
	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := requireArgs("import-cars", positional, 1, "<file.csv>"); err != nil {
		return err
	}

	file, err := os.Open(positional[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", positional[0], err)
	}
	defer file.Close()

	summary, err := a.api.ImportCars(ctx, a.manager.Token(), *provider, file)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "imported %d of %d rows\n", summary.Imported, summary.TotalRows)
	for _, skipped := range summary.SkippedDuplicates {
		fmt.Fprintf(a.out, "  row %d skipped (%s): %s\n", skipped.Row, skipped.Name, skipped.Reason)
	}
	for _, failed := range summary.Failed {
		fmt.Fprintf(a.out, "  row %d failed (%s): %s\n", failed.Row, failed.Name, failed.Error)
	}
	if summary.TruncatedRecords {
		fmt.Fprintln(a.out, "  further problems were omitted")
	}
	return nil
}

func runBook(ctx context.Context, a *app, args []string) error {
	identity, err := a.guard.RequireAuthenticated()
	if err != nil {
		return err
	}

	fs := newFlags("book")
	email := fs.String("email", identity.Email, "booker email")
	comment := fs.String("comment", "", "note for the provider")
	start := fs.String("start", "", "start date YYYY-MM-DD")
	end := fs.String("end", "", "end date YYYY-MM-DD")
	positional, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if err := requireArgs("book", positional, 1, "<car-id>"); err != nil {
		return err
	}

	startDate, err := parseDate("start", *start)
	if err != nil {
		return err
	}
	endDate, err := parseDate("end", *end)
	if err != nil {
		return err
	}

	result, err := a.gate.BookWith(ctx, booking.Request{
		CarID:     positional[0],
		Email:     *email,
		StartDate: startDate,
		EndDate:   endDate,
		Comment:   *comment,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "booked %s (%s) for %s, booking id %s\n", result.Car.Name, result.Car.ID, result.Booking.Email, result.Booking.ID)
	return nil
}

func runCancel(ctx context.Context, a *app, args []string) error {
	if _, err := a.guard.RequireAuthenticated(); err != nil {
		return err
	}
	positional, err := parseArgs(newFlags("cancel"), args)
	if err != nil {
		return err
	}
	if err := requireArgs("cancel", positional, 1, "<booking-id>"); err != nil {
		return err
	}

	if err := a.gate.Cancel(ctx, positional[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "booking %s cancelled\n", positional[0])
	return nil
}

func runMyBookings(ctx context.Context, a *app, args []string) error {
	identity, err := a.guard.RequireAuthenticated()
	if err != nil {
		return err
	}

	fs := newFlags("my-bookings")
	email := fs.String("email", identity.Email, "booker email (admins only for others)")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	list, err := a.api.MyBookings(ctx, a.manager.Token(), *email)
	if err != nil {
		return err
	}
	a.gate.TrackBookings(list...)
	printBookings(a.out, list)
	return nil
}

func runAllBookings(ctx context.Context, a *app, args []string) error {
	if _, err := a.guard.RequireRole(session.RoleAdmin); err != nil {
		return err
	}

	fs := newFlags("bookings")
	page := fs.Int("page", 1, "page number")
	limit := fs.Int("limit", 10, "page size")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	result, err := a.api.AllBookings(ctx, a.manager.Token(), *page, *limit)
	if err != nil {
		return err
	}
	printBookings(a.out, result.Bookings)
	fmt.Fprintf(a.out, "page %d of %d (%d bookings)\n", result.Page, result.TotalPages, result.TotalBookings)
	return nil
}

func runExportBookings(ctx context.Context, a *app, args []string) error {
	if _, err := a.guard.RequireRole(session.RoleAdmin); err != nil {
		return err
	}

	fs := newFlags("export-bookings")
	output := fs.String("o", "", "write CSV to this file instead of stdout")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	if *output == "" {
		return a.api.ExportBookings(ctx, a.manager.Token(), a.out)
	}

	file, err := os.Create(*output)
	if err != nil {
		return fmt.Errorf("create %s: %w", *output, err)
	}
	if err := a.api.ExportBookings(ctx, a.manager.Token(), file); err != nil {
		_ = file.Close()
		_ = os.Remove(*output)
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", *output, err)
	}
	fmt.Fprintf(a.out, "bookings written to %s\n", *output)
	return nil
}

func runUsers(ctx context.Context, a *app, _ []string) error {
	if _, err := a.guard.RequireRole(session.RoleAdmin); err != nil {
		return err
	}

	list, err := a.api.ListUsers(ctx, a.manager.Token())
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EMAIL\tNAME\tROLE")
	for _, user := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", user.Email, user.Name, user.Role)
	}
	return tw.Flush()
}

func runSetRole(ctx context.Context, a *app, args []string) error {
	if _, err := a.guard.RequireRole(session.RoleAdmin); err != nil {
		return err
	}
	positional, err := parseArgs(newFlags("set-role"), args)
	if err != nil {
		return err
	}
	if err := requireArgs("set-role", positional, 2, "<email> <user|admin>"); err != nil {
		return err
	}

	user, err := a.api.SetRole(ctx, a.manager.Token(), positional[0], positional[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s is now %s\n", user.Email, user.Role)
	return nil
}

func parseDate(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	value, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, apierr.Validation("-%s must be YYYY-MM-DD", name)
	}
	return &value, nil
}

func printIdentity(w io.Writer, identity *session.Identity) {
	if identity == nil {
		fmt.Fprintln(w, "not signed in")
		return
	}
	name := identity.DisplayName
	if name == "" {
		name = "-"
	}
	fmt.Fprintf(w, "%s (%s) role=%s\n", identity.Email, name, identity.Role)
}

func printCars(w io.Writer, list []client.Car) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE/DAY\tLOCATION\tSTATUS")
	for _, car := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\n", car.ID, car.Name, car.Category, car.PricePerDay, car.Location, car.Status)
	}
	_ = tw.Flush()
}

func printBookings(w io.Writer, list []client.Booking) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCAR\tEMAIL\tPRICE/DAY\tSTATUS\tCREATED")
	for _, b := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\n", b.ID, b.CarName, b.Email, b.RentPrice, b.Status, b.CreatedAt.Format(time.DateOnly))
	}
	_ = tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return errors.Join(apierr.ErrServer, err)
	}
	return nil
}
