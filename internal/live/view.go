package live

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/studyhub/internal/billing"
	"github.com/ashureev/studyhub/internal/domain"
)

// TickInterval is how often an open session's running total is re-derived.
const TickInterval = time.Second

const zeroDuration = "0h 0m 0s"

// Row is one registered user joined with their open session, if any.
type Row struct {
	UserID    string     `json:"user_id"`
	Username  string     `json:"username"`
	SessionID string     `json:"session_id,omitempty"`
	LoggedIn  bool       `json:"logged_in"`
	LoginTime *time.Time `json:"login_time,omitempty"`
	Duration  string     `json:"duration"`
	Payment   int64      `json:"current_payment"`
}

// View is what the dashboard renders.
type View struct {
	Rows      []Row     `json:"rows"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Join pairs every user with their open session and bills open sessions up
// to now. Sessions of users not in users are ignored.
func Join(users []*domain.User, sessions []*domain.Session, now time.Time) []Row {
	byUser := make(map[string]*domain.Session, len(sessions))
	for _, sess := range sessions {
		if !sess.IsOpen() {
			continue
		}
		if _, seen := byUser[sess.UserID]; !seen {
			byUser[sess.UserID] = sess
		}
	}

	rows := make([]Row, 0, len(users))
	for _, user := range users {
		row := Row{UserID: user.ID, Username: user.Username, Duration: zeroDuration}
		if sess, ok := byUser[user.ID]; ok {
			loginTime := sess.LoginTime
			row.SessionID = sess.ID
			row.LoggedIn = true
			row.LoginTime = &loginTime
			derive(&row, now)
		}
		rows = append(rows, row)
	}
	return rows
}

func derive(row *Row, now time.Time) {
	if row.LoginTime == nil {
		return
	}
	bill := billing.Compute(*row.LoginTime, now)
	row.Duration = billing.FormatDuration(bill.Elapsed)
	row.Payment = bill.Payment
}

// ViewModel consumes a subscription and re-derives open rows on every tick.
// All state is owned by the Run goroutine.
type ViewModel struct {
	sub      *Subscription
	now      func() time.Time
	interval time.Duration
	logger   *slog.Logger

	ticks   chan string
	tickers *TickerSet
	rows    []Row
	index   map[string]int
	lastErr string
	views   chan View
}

// ViewOption configures a ViewModel.
type ViewOption func(*ViewModel)

// WithNow replaces the clock used for running totals.
func WithNow(now func() time.Time) ViewOption {
	return func(vm *ViewModel) {
		vm.now = now
	}
}

// WithTickInterval overrides TickInterval.
func WithTickInterval(d time.Duration) ViewOption {
	return func(vm *ViewModel) {
		vm.interval = d
	}
}

// WithViewLogger sets the logger.
func WithViewLogger(logger *slog.Logger) ViewOption {
	return func(vm *ViewModel) {
		vm.logger = logger
	}
}

// NewViewModel creates a view model over sub. Run must be called to start it.
func NewViewModel(sub *Subscription, opts ...ViewOption) *ViewModel {
	vm := &ViewModel{
		sub:      sub,
		now:      time.Now,
		interval: TickInterval,
		logger:   slog.Default(),
		ticks:    make(chan string),
		index:    make(map[string]int),
		views:    make(chan View, 1),
	}
	for _, opt := range opts {
		opt(vm)
	}
	vm.tickers = NewTickerSet(vm.interval, vm.ticks)
	return vm
}

// Views returns the latest-view channel. Stale views are dropped in favour
// of newer ones.
func (vm *ViewModel) Views() <-chan View {
	return vm.views
}

// Run processes snapshots and ticks until ctx is done or the subscription
// ends. It always stops every ticker and closes the subscription on return.
func (vm *ViewModel) Run(ctx context.Context) error {
	defer vm.sub.Close()
	defer vm.tickers.StopAll()

	events := vm.sub.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-events:
			if !ok {
				return nil
			}
			vm.apply(snap)
			vm.publish()
		case id := <-vm.ticks:
			if vm.tick(id) {
				vm.publish()
			}
		}
	}
}

func (vm *ViewModel) apply(snap Snapshot) {
	if snap.Err != nil {
		vm.lastErr = snap.Err.Error()
		return
	}
	vm.lastErr = ""

	vm.rows = Join(snap.Users, snap.Sessions, vm.now())
	vm.index = make(map[string]int, len(vm.rows))
	open := make([]string, 0, len(vm.rows))
	for i, row := range vm.rows {
		if row.LoggedIn {
			vm.index[row.SessionID] = i
			open = append(open, row.SessionID)
		}
	}

	started, stopped := vm.tickers.Sync(open)
	if len(started) > 0 || len(stopped) > 0 {
		vm.logger.Debug("Live tickers synced", "started", started, "stopped", stopped)
	}
}

// tick re-derives the row of one session. Ticks for sessions that are no
// longer open are ignored.
func (vm *ViewModel) tick(sessionID string) bool {
	i, ok := vm.index[sessionID]
	if !ok {
		return false
	}
	derive(&vm.rows[i], vm.now())
	return true
}

func (vm *ViewModel) publish() {
	rows := make([]Row, len(vm.rows))
	copy(rows, vm.rows)
	v := View{Rows: rows, Error: vm.lastErr, UpdatedAt: vm.now()}

	select {
	case <-vm.views:
	default:
	}
	vm.views <- v
}
