package reviewlist

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
)

// DefaultInterval is the refresh period of the list
const DefaultInterval = 5 * time.Second

const Title = "WhatsApp Product Reviews"

var (
	titleStyle = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "242", Dark: "246"})
)

type tickMsg time.Time

type reviewsMsg struct {
	seq     uint64
	reviews []Review
}

type reviewsErrMsg struct {
	seq uint64
	err error
}

// Options configures a Model or Poller
type Options struct {
	Interval time.Duration   // DefaultInterval when zero
	Timeout  time.Duration   // per fetch; none when zero
	Location *time.Location  // time.Local when nil
	Logger   *zerolog.Logger // discarded when nil
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	return o
}

// Model is the interactive review list. Fetch results and ticks arrive as
// messages, so every state change happens inside Update.
type Model struct {
	fetcher Fetcher
	opts    Options
	state   State
	issued  uint64 // last sequence number handed to a fetch
	closed  bool
	width   int
}

// NewModel creates the view. Sequence 1 is the fetch issued by Init.
func NewModel(fetcher Fetcher, opts Options) Model {
	return Model{
		fetcher: fetcher,
		opts:    opts.withDefaults(),
		state:   NewState(),
		issued:  1,
	}
}

// Init fetches once and starts the timer
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetch(1), m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.opts.Interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) fetch(seq uint64) tea.Cmd {
	fetcher, timeout := m.fetcher, m.opts.Timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		reviews, err := fetcher.FetchReviews(ctx)
		if err != nil {
			return reviewsErrMsg{seq: seq, err: err}
		}
		return reviewsMsg{seq: seq, reviews: reviews}
	}
}

// Update handles timer ticks, fetch completions and keys
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.closed = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		if m.closed {
			return m, nil
		}
		m.issued++
		return m, tea.Batch(m.fetch(m.issued), m.tick())

	case reviewsMsg:
		if !m.state.Apply(msg.seq, msg.reviews) {
			m.opts.Logger.Debug().
				Uint64("seq", msg.seq).
				Uint64("applied", m.state.Applied()).
				Msg("Discarded stale reviews response")
			return m, nil
		}
		m.opts.Logger.Debug().
			Uint64("seq", msg.seq).
			Int("count", len(msg.reviews)).
			Msg("Reviews refreshed")

	case reviewsErrMsg:
		m.state.Fail(msg.seq)
		m.opts.Logger.Warn().
			Err(msg.err).
			Uint64("seq", msg.seq).
			Msg("Failed to fetch reviews")
	}
	return m, nil
}

// View renders the title, the list and a key hint
func (m Model) View() string {
	body := Render(m.state, m.opts.Location)
	if m.width > 0 {
		body = lipgloss.NewStyle().MaxWidth(m.width).Render(body)
	}
	return titleStyle.Render(Title) + "\n" + body + "\n\n" + helpStyle.Render("q quit") + "\n"
}

// State returns the current view state
func (m Model) State() State { return m.state }

// Closed reports whether the view has been torn down
func (m Model) Closed() bool { return m.closed }
