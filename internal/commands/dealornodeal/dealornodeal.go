// Package dealornodeal runs one Deal or No Deal game per guild. The starter
// is the player: they claim a case, open the rest in rounds, and field a
// banker offer after each round. Everything moves through buttons on the
// board message; the game state is a small phase machine guarded by one
// mutex.
package dealornodeal

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"spectreon/internal/discord"
	"spectreon/internal/registry"
	"spectreon/internal/session"

	"github.com/bwmarrin/discordgo"
)

// ComponentPrefix routes all game buttons: "dond:case:<n>", "dond:deal",
// "dond:nodeal".
const ComponentPrefix = "dond:"

const idleTimeout = 5 * time.Minute

var caseAmounts = []int{1, 5, 10, 50, 100, 500, 1000, 5000, 10000, 50000}

type phase int

const (
	phasePickCase phase = iota // player claims their own case
	phaseOpening               // player opens other cases this round
	phaseOffer                 // banker made an offer, deal or no deal
	phaseDone
)

// opensPerRound is how many cases each round opens before the banker calls.
var opensPerRound = []int{3, 3, 2}

type state struct {
	mu      sync.Mutex
	phase   phase
	amounts []int
	opened  []bool
	ownCase int
	round   int
	toOpen  int
	offer   int
}

func newState() *state {
	amounts := make([]int, len(caseAmounts))
	for i, j := range rand.Perm(len(caseAmounts)) {
		amounts[i] = caseAmounts[j]
	}
	return &state{
		amounts: amounts,
		opened:  make([]bool, len(amounts)),
		ownCase: -1,
	}
}

var (
	errWrongPhase = errors.New("not right now")
	errCaseOpened = errors.New("that case is already open")
	errOwnCase    = errors.New("that's your own case")
	errBadCase    = errors.New("no such case")
)

// pickOwn claims the player's case and starts round one.
func (st *state) pickOwn(n int) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.phase != phasePickCase {
		return errWrongPhase
	}
	if n < 0 || n >= len(st.amounts) {
		return errBadCase
	}
	st.ownCase = n
	st.phase = phaseOpening
	st.round = 0
	st.toOpen = opensPerRound[0]
	return nil
}

// openCase reveals a case. offerDue reports that the round finished and the
// banker is about to call.
func (st *state) openCase(n int) (amount int, offerDue bool, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.phase != phaseOpening {
		return 0, false, errWrongPhase
	}
	if n < 0 || n >= len(st.amounts) {
		return 0, false, errBadCase
	}
	if n == st.ownCase {
		return 0, false, errOwnCase
	}
	if st.opened[n] {
		return 0, false, errCaseOpened
	}

	st.opened[n] = true
	st.toOpen--
	if st.toOpen == 0 {
		st.phase = phaseOffer
		st.offer = st.bankerOfferLocked()
		return st.amounts[n], true, nil
	}
	return st.amounts[n], false, nil
}

// bankerOfferLocked is a discounted expected value over the unopened cases.
func (st *state) bankerOfferLocked() int {
	sum, n := 0, 0
	for i, a := range st.amounts {
		if !st.opened[i] {
			sum += a
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum * 9 / (n * 10)
}

// deal takes the banker's offer and ends the game. Returns the offer and
// what the player's own case held.
func (st *state) deal() (payout, ownAmount int, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.phase != phaseOffer {
		return 0, 0, errWrongPhase
	}
	st.phase = phaseDone
	return st.offer, st.amounts[st.ownCase], nil
}

// noDeal refuses the offer. When rounds remain it starts the next one;
// otherwise the game ends with the player's own case.
func (st *state) noDeal() (finalAmount int, done bool, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.phase != phaseOffer {
		return 0, false, errWrongPhase
	}
	st.round++
	if st.round < len(opensPerRound) {
		st.phase = phaseOpening
		st.toOpen = opensPerRound[st.round]
		return 0, false, nil
	}
	st.phase = phaseDone
	return st.amounts[st.ownCase], true, nil
}

// remaining lists the unopened amounts, sorted, for the board.
func (st *state) remaining() []int {
	st.mu.Lock()
	defer st.mu.Unlock()
	var out []int
	for i, a := range st.amounts {
		if !st.opened[i] {
			out = append(out, a)
		}
	}
	sort.Ints(out)
	return out
}

func (st *state) snapshot() (phase, int, int) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.phase, st.offer, st.toOpen
}

// Feature runs the game through one session manager.
type Feature struct {
	mgr *session.Manager

	mu  sync.Mutex
	say func(channelID, text string)
}

// New builds the feature and registers its command and component route.
func New(reg *registry.Registry, clock session.Clock) *Feature {
	f := &Feature{mgr: session.NewManager("Deal or No Deal game", session.ScopeGuild, clock)}

	reg.RegisterExposed(registry.ExposedCommand{
		LogicalID: "dealornodeal",
		Name:      "dealornodeal",
		Handler:   f.handleCommand,
		Help:      "Play Deal or No Deal: `dealornodeal` starts, `dealornodeal stop` abandons the game",
		Opts:      registry.TextOptions{Aliases: []string{"dond"}, Category: "Games"},
	})
	reg.RegisterComponent(ComponentPrefix, f.handleButton)
	return f
}

func (f *Feature) bindSay(s *discordgo.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.say == nil {
		f.say = func(channelID, text string) { _ = discord.Message(s, channelID, text) }
	}
}

func (f *Feature) reply(ctx *registry.MessageContext, text string) error {
	f.announce(ctx.Actor.ChannelID, text)
	return nil
}

func (f *Feature) announce(channelID, text string) {
	f.mu.Lock()
	say := f.say
	f.mu.Unlock()
	if say != nil {
		say(channelID, text)
	}
}

func (f *Feature) handleCommand(ctx *registry.MessageContext) error {
	f.bindSay(ctx.Session)

	if strings.TrimSpace(ctx.Rest) == "stop" {
		return f.stop(ctx)
	}

	st := newState()
	s, err := f.mgr.TryStart(ctx.Actor.GuildID, ctx.Actor.ChannelID, ctx.Actor.UserID, ctx.Actor.Username, st)
	if err != nil {
		return f.reply(ctx, err.Error())
	}
	f.armIdleTimeout(s)

	if ctx.Session != nil {
		if err := f.postBoard(ctx.Session, s, "Pick YOUR case. It stays shut until the end."); err != nil {
			f.mgr.Stop(ctx.Actor.GuildID)
			return fmt.Errorf("failed to post game board: %w", err)
		}
	}
	return nil
}

func (f *Feature) stop(ctx *registry.MessageContext) error {
	s := f.mgr.Get(ctx.Actor.GuildID)
	if s == nil {
		return f.reply(ctx, "No game is running.")
	}
	if !session.CanManage(s, ctx.Actor.UserID, ctx.Actor.IsGuildAdmin) {
		return f.reply(ctx, "Only the player or an admin can stop the game.")
	}
	if err := session.RequireSameChannel(s, ctx.Actor.ChannelID); err != nil {
		return f.reply(ctx, err.Error())
	}
	f.mgr.Stop(ctx.Actor.GuildID)
	return f.reply(ctx, "Game abandoned. The banker hangs up.")
}

func (f *Feature) armIdleTimeout(s *session.Session) {
	s.Timers.ClearAll()
	s.Timers.AfterFunc(idleTimeout, func() {
		f.mgr.Stop(s.GuildID)
		f.announce(s.ChannelID, "The banker got bored waiting. Deal or No Deal is over.")
	})
}

func (f *Feature) handleButton(ic *registry.InteractionContext) error {
	s := f.mgr.Get(ic.Actor.GuildID)
	if s == nil {
		discord.RespondEphemeral(ic.Session, ic.Event, "That game is over.")
		return nil
	}
	if ic.Actor.UserID != s.OwnerID {
		discord.RespondEphemeral(ic.Session, ic.Event, fmt.Sprintf("This is <@%s>'s game. Start your own!", s.OwnerID))
		return nil
	}

	st := s.State.(*state)
	action := strings.TrimPrefix(ic.CustomID, ComponentPrefix)
	f.armIdleTimeout(s)

	switch {
	case strings.HasPrefix(action, "case:"):
		n, err := strconv.Atoi(strings.TrimPrefix(action, "case:"))
		if err != nil {
			return fmt.Errorf("malformed case button %q", ic.CustomID)
		}
		return f.handleCase(ic, s, st, n)
	case action == "deal":
		payout, ownAmount, err := st.deal()
		if err != nil {
			discord.RespondEphemeral(ic.Session, ic.Event, "There's no offer on the table.")
			return nil
		}
		f.mgr.Stop(s.GuildID)
		f.ack(ic)
		f.announce(s.ChannelID, fmt.Sprintf(
			"🤝 **DEAL!** <@%s> takes the banker's **$%d**. Their case held **$%d**.",
			s.OwnerID, payout, ownAmount))
		log.Printf("[DONE] [%s] DOND: dealt at %d (case held %d)", s.GuildID, payout, ownAmount)
		return nil
	case action == "nodeal":
		finalAmount, done, err := st.noDeal()
		if err != nil {
			discord.RespondEphemeral(ic.Session, ic.Event, "There's no offer on the table.")
			return nil
		}
		f.ack(ic)
		if done {
			f.mgr.Stop(s.GuildID)
			f.announce(s.ChannelID, fmt.Sprintf(
				"😤 **NO DEAL** to the end! <@%s> opens their case... **$%d**!",
				s.OwnerID, finalAmount))
			log.Printf("[DONE] [%s] DOND: rode it out for %d", s.GuildID, finalAmount)
			return nil
		}
		_, _, toOpen := st.snapshot()
		if ic.Session != nil {
			return f.postBoard(ic.Session, s, fmt.Sprintf("No deal! Open %d more case(s).", toOpen))
		}
		return nil
	}
	return fmt.Errorf("unknown game button %q", ic.CustomID)
}

func (f *Feature) handleCase(ic *registry.InteractionContext, s *session.Session, st *state, n int) error {
	ph, _, _ := st.snapshot()
	if ph == phasePickCase {
		if err := st.pickOwn(n); err != nil {
			discord.RespondEphemeral(ic.Session, ic.Event, err.Error())
			return nil
		}
		f.ack(ic)
		if ic.Session != nil {
			return f.postBoard(ic.Session, s, fmt.Sprintf(
				"Case **%d** is yours. Now open %d cases.", n+1, opensPerRound[0]))
		}
		return nil
	}

	amount, offerDue, err := st.openCase(n)
	if err != nil {
		discord.RespondEphemeral(ic.Session, ic.Event, err.Error())
		return nil
	}
	f.ack(ic)
	f.announce(s.ChannelID, fmt.Sprintf("Case **%d** held... **$%d**!", n+1, amount))

	if offerDue {
		_, offer, _ := st.snapshot()
		f.announce(s.ChannelID, fmt.Sprintf(
			"📞 The banker offers **$%d**. Remaining amounts: %s", offer, dollarList(st.remaining())))
		if ic.Session != nil {
			return f.postOfferButtons(ic.Session, s)
		}
		return nil
	}
	_, _, toOpen := st.snapshot()
	f.announce(s.ChannelID, fmt.Sprintf("%d more to open this round.", toOpen))
	return nil
}

// ack clears the button press without visible output.
func (f *Feature) ack(ic *registry.InteractionContext) {
	if ic.Session != nil {
		_ = discord.DeferUpdate(ic.Session, ic.Event)
	}
}

func (f *Feature) postBoard(dg *discordgo.Session, s *session.Session, prompt string) error {
	st := s.State.(*state)
	st.mu.Lock()
	opened := make([]bool, len(st.opened))
	copy(opened, st.opened)
	own := st.ownCase
	st.mu.Unlock()

	var rows []discordgo.MessageComponent
	row := discordgo.ActionsRow{}
	for i := range opened {
		if len(row.Components) == 5 {
			rows = append(rows, row)
			row = discordgo.ActionsRow{}
		}
		row.Components = append(row.Components, discordgo.Button{
			Label:    strconv.Itoa(i + 1),
			Style:    caseStyle(i, opened[i], own),
			CustomID: fmt.Sprintf("%scase:%d", ComponentPrefix, i),
			Disabled: opened[i] || i == own,
		})
	}
	rows = append(rows, row)

	_, err := dg.ChannelMessageSendComplex(s.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       "💼 Deal or No Deal",
			Description: prompt + "\nIn play: " + dollarList(st.remaining()),
			Color:       discord.EmbedColor,
		}},
		Components: rows,
	})
	return err
}

func (f *Feature) postOfferButtons(dg *discordgo.Session, s *session.Session) error {
	_, err := dg.ChannelMessageSendComplex(s.ChannelID, &discordgo.MessageSend{
		Content: fmt.Sprintf("<@%s> Deal, or no deal?", s.OwnerID),
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Deal", Style: discordgo.SuccessButton, CustomID: ComponentPrefix + "deal"},
				discordgo.Button{Label: "No Deal", Style: discordgo.DangerButton, CustomID: ComponentPrefix + "nodeal"},
			},
		}},
	})
	return err
}

func caseStyle(i int, opened bool, own int) discordgo.ButtonStyle {
	switch {
	case i == own:
		return discordgo.SuccessButton
	case opened:
		return discordgo.SecondaryButton
	}
	return discordgo.PrimaryButton
}

func dollarList(amounts []int) string {
	parts := make([]string, len(amounts))
	for i, a := range amounts {
		parts[i] = "$" + strconv.Itoa(a)
	}
	return strings.Join(parts, ", ")
}
