// Command seatclient is a terminal viewer for one show: it mirrors the seat
// map live and lets the user hold, release and book seats.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/iliyamo/cinema-seat-sync/internal/client"
	"github.com/iliyamo/cinema-seat-sync/internal/model"
	"github.com/iliyamo/cinema-seat-sync/internal/utils"
)

const usage = `Commands:
  hold <seat>             lease a seat
  release <seat>          give a held seat back
  book <seat> [seat...]   buy held seats together
  clear                   release every seat you hold
  seats                   print the seat map
  quit                    leave (held seats are released unless -no-reaper)
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("seatclient", flag.ContinueOnError)
	fs.SetOutput(stderr)
	baseURL := fs.String("url", "http://localhost:8080", "Reservation service base URL")
	showID := fs.Int64("show", 42, "Show to attach to")
	token := fs.String("token", "", "Bearer token")
	secret := fs.String("secret", "", "JWT secret used to mint a development token when -token is empty")
	user := fs.String("user", "", "User id for the minted token")
	noReaper := fs.Bool("no-reaper", false, "Leave held seats to expire on their own when quitting")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	userID, tok, err := identity(*token, *secret, *user)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	api := client.NewAPI(*baseURL, tok)
	sess := client.NewSession(*showID, userID, api, client.NewStream(api.StreamURL(*showID)), client.SessionOptions{
		Reaper: &client.Reaper{API: api, Timeout: 2 * time.Second, Enabled: !*noReaper},
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		sess.Run(ctx)
	}()
	go func() {
		for n := range sess.Notices() {
			printNotice(stdout, n)
		}
	}()

	fmt.Fprintf(stdout, "show %d as %s\n%s", *showID, userID, usage)
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok || !dispatch(sess, line, stdout) {
				break loop
			}
		}
	}
	cancel()
	<-done
	return 0
}

// identity returns the user id and the bearer token to use.
func identity(token, secret, user string) (string, string, error) {
	if token != "" {
		if secret == "" {
			return user, token, nil
		}
		id, err := utils.ParseUserID(secret, token)
		return id, token, err
	}
	if secret == "" || user == "" {
		return "", "", errors.New("either -token or both -secret and -user are required")
	}
	tok, err := utils.SignAccessToken(secret, user, 12*time.Hour)
	if err != nil {
		return "", "", err
	}
	return user, tok.Token, nil
}

// dispatch runs one command line.  It returns false on quit.
func dispatch(sess *client.Session, line string, out io.Writer) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return true
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	for i := range args {
		args[i] = strings.ToUpper(args[i])
	}
	switch {
	case cmd == "quit" || cmd == "exit":
		return false
	case cmd == "seats":
		printSeats(out, sess.View(), sess.UserID)
	case cmd == "hold" && len(args) == 1:
		sess.Hold(args[0])
	case cmd == "release" && len(args) == 1:
		sess.Release(args[0])
	case cmd == "book" && len(args) > 0:
		sess.Book(args...)
	case cmd == "clear" && len(args) == 0:
		sess.ReleaseAll()
	default:
		fmt.Fprint(out, usage)
	}
	return true
}

func printNotice(out io.Writer, n client.Notice) {
	seats := ""
	if len(n.SeatIDs) > 0 {
		seats = " [" + strings.Join(n.SeatIDs, " ") + "]"
	}
	fmt.Fprintf(out, "* %s%s: %s\n", n.Kind, seats, n.Message)
	if n.Booking != nil {
		fmt.Fprintf(out, "  booking %s\n", n.Booking.ID)
	}
}

// printSeats prints one line per row: "." available, "h" held, "H" held by
// someone else, "x" booked, "?" request in flight, then the caller's
// countdowns.
func printSeats(out io.Writer, view []client.SeatView, userID string) {
	if len(view) == 0 {
		fmt.Fprintln(out, "no seat map yet")
		return
	}
	var (
		row   string
		line  strings.Builder
		timer []string
	)
	flush := func() {
		if row != "" {
			fmt.Fprintf(out, "%-3s %s\n", row, line.String())
		}
		line.Reset()
	}
	for _, v := range view {
		r := strings.TrimRight(v.SeatID, "0123456789")
		if r != row {
			flush()
			row = r
		}
		line.WriteByte(seatGlyph(v, userID))
		if v.HeldBy(userID) {
			timer = append(timer, fmt.Sprintf("%s %d:%02d", v.SeatID, v.Remaining/60, v.Remaining%60))
		}
	}
	flush()
	if len(timer) > 0 {
		fmt.Fprintln(out, "held:", strings.Join(timer, ", "))
	}
}

func seatGlyph(v client.SeatView, userID string) byte {
	switch {
	case v.Pending != "":
		return '?'
	case v.Status == model.StatusBooked:
		return 'x'
	case v.HeldBy(userID):
		return 'h'
	case v.Status == model.StatusHeld:
		return 'H'
	}
	return '.'
}
