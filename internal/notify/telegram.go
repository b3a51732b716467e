package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"deye-monitor/internal/inverter"
	"deye-monitor/internal/monitor"
	"deye-monitor/internal/outage"
	"deye-monitor/internal/stats"
	"deye-monitor/internal/weather"
)

const (
	sendAttempts   = 4
	pollMaxBackoff = 60 * time.Second
)

// SnapshotSource supplies the cached poller snapshot for commands.
type SnapshotSource interface {
	Latest() (inverter.Snapshot, bool)
}

// WeatherSource supplies the latest forecast for message decoration. nil
// Data means no successful fetch yet.
type WeatherSource interface {
	Latest() *weather.Data
}

// UpdateCursor persists the last processed transport update id across
// restarts so commands are never replayed.
type UpdateCursor interface {
	LastUpdateID() int
	SetLastUpdateID(id int)
}

// Telegram delivers notifications and answers a small set of chat commands.
type Telegram struct {
	bot       *tgbotapi.BotAPI
	chatIDs   []int64
	cursor    UpdateCursor
	snapshots SnapshotSource
	schedule  *outage.Poller
	gridLog   *stats.GridImportLog
	generator *stats.GeneratorRecorder
	weather   WeatherSource

	hasBattery  bool
	capacityKWh float64
}

type TelegramConfig struct {
	Token       string
	ChatIDs     []int64
	Cursor      UpdateCursor
	Snapshots   SnapshotSource
	Schedule    *outage.Poller
	GridLog     *stats.GridImportLog
	Generator   *stats.GeneratorRecorder
	Weather     WeatherSource
	HasBattery  bool
	CapacityKWh float64
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	logrus.Infof("telegram: authorized as @%s", bot.Self.UserName)
	return &Telegram{
		bot:         bot,
		chatIDs:     cfg.ChatIDs,
		cursor:      cfg.Cursor,
		snapshots:   cfg.Snapshots,
		schedule:    cfg.Schedule,
		gridLog:     cfg.GridLog,
		generator:   cfg.Generator,
		weather:     cfg.Weather,
		hasBattery:  cfg.HasBattery,
		capacityKWh: cfg.CapacityKWh,
	}, nil
}

// Notify broadcasts the rendered event to every configured chat. Grid-down
// messages carry the current forecast when one is available, since an outage
// in bad weather tends to last longer.
func (t *Telegram) Notify(e monitor.Event) {
	text := Render(e)
	if e.Type == monitor.EventGridDown {
		if line := t.weatherLine(); line != "" {
			text += "\n" + line
		}
	}
	for _, chatID := range t.chatIDs {
		t.send(chatID, text)
	}
}

func (t *Telegram) weatherLine() string {
	if t.weather == nil {
		return ""
	}
	d := t.weather.Latest()
	if d == nil {
		return ""
	}
	return fmt.Sprintf("🌤 %s, %.1f°C (today %.0f to %.0f°C)",
		d.Description, d.Temperature, d.TempMin, d.TempMax)
}

// send retries with doubling delay. A notification that cannot be delivered
// after the last attempt is dropped, not queued.
func (t *Telegram) send(chatID int64, text string) {
	delay := 2 * time.Second
	for attempt := 1; attempt <= sendAttempts; attempt++ {
		_, err := t.bot.Send(tgbotapi.NewMessage(chatID, text))
		if err == nil {
			return
		}
		logrus.Warnf("telegram: send to %d failed (attempt %d/%d): %v", chatID, attempt, sendAttempts, err)
		if attempt < sendAttempts {
			time.Sleep(delay)
			delay *= 2
		}
	}
	logrus.Errorf("telegram: giving up on message to %d", chatID)
}

// Run polls for incoming commands until ctx is cancelled.
func (t *Telegram) Run(ctx context.Context) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cfg := tgbotapi.NewUpdate(t.cursor.LastUpdateID() + 1)
		cfg.Timeout = 30
		updates, err := t.bot.GetUpdates(cfg)
		if err != nil {
			logrus.Warnf("telegram: poll failed, retrying in %s: %v", backoff, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > pollMaxBackoff {
				backoff = pollMaxBackoff
			}
			continue
		}
		backoff = time.Second

		for _, update := range updates {
			t.cursor.SetLastUpdateID(update.UpdateID)
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if !t.allowed(update.Message.Chat.ID) {
				logrus.Warnf("telegram: ignoring command from unauthorized chat %d", update.Message.Chat.ID)
				continue
			}
			t.handleCommand(update.Message)
		}
	}
}

func (t *Telegram) allowed(chatID int64) bool {
	for _, id := range t.chatIDs {
		if id == chatID {
			return true
		}
	}
	return false
}

func (t *Telegram) handleCommand(msg *tgbotapi.Message) {
	var reply string
	switch msg.Command() {
	case "battery":
		reply = t.batteryReply()
	case "outage":
		reply = t.outageReply()
	case "grid":
		reply = t.gridReply()
	case "generator":
		reply = t.generatorReply()
	case "weather":
		reply = t.weatherReply()
	case "start", "help":
		reply = "Commands:\n/battery — battery and load status\n/outage — outage schedule and battery estimate\n/grid — grid import this month\n/generator — generator runtime\n/weather — current conditions"
	default:
		return
	}
	t.send(msg.Chat.ID, reply)
}

func (t *Telegram) batteryReply() string {
	snap, ok := t.snapshots.Latest()
	if !ok {
		return "No inverter data yet"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🔋 Battery: %d%% (%.2f V, %d W %s)\n",
		snap.BatterySOC, snap.BatteryVoltage, snap.BatteryPower, snap.BatteryStatus)
	fmt.Fprintf(&b, "☀️ PV: %d W\n", snap.PVTotalPower)
	fmt.Fprintf(&b, "🏠 Load: %d W\n", snap.LoadPower)
	fmt.Fprintf(&b, "⚡ Grid: %.1f V, %d W %s\n", snap.GridVoltage, snap.GridPower, snap.GridStatus)
	fmt.Fprintf(&b, "Updated: %s", snap.Timestamp.Format("15:04:05"))
	return b.String()
}

func (t *Telegram) outageReply() string {
	return t.outageReplyAt(time.Now())
}

func (t *Telegram) outageReplyAt(now time.Time) string {
	if t.schedule == nil {
		return "No outage schedule configured"
	}
	status := t.schedule.StatusAt(now)

	var b strings.Builder
	b.WriteString(renderSchedule(status, now))
	if len(status.Upcoming) > 0 {
		b.WriteString("\nToday:")
		for _, iv := range status.Upcoming {
			fmt.Fprintf(&b, "\n  %s–%s", iv.Start.Format("15:04"), iv.End.Format("15:04"))
		}
	}

	if window, ok := status.SurvivalWindow(now); ok {
		if !t.hasBattery {
			b.WriteString("\n")
			b.WriteString(renderSurvival(outage.NoBatteryEstimate()))
		} else if snap, ok := t.snapshots.Latest(); ok {
			est := outage.EstimateSurvival(snap.BatterySOC, snap.LoadPower,
				window, t.capacityKWh)
			b.WriteString("\n")
			b.WriteString(renderSurvival(est))
		}
	}
	return b.String()
}

func (t *Telegram) gridReply() string {
	if t.gridLog == nil {
		return "No grid import data"
	}
	now := time.Now()
	total, days, first, last := t.gridLog.MonthTotal(now.Year(), now.Month())
	if days == 0 {
		return fmt.Sprintf("No grid import recorded for %s", now.Format("January 2006"))
	}
	return fmt.Sprintf("⚡ Grid import %s: %.1f kWh over %d days (%s to %s, avg %.1f kWh/day)",
		now.Format("January 2006"), total, days, first, last, total/float64(days))
}

func (t *Telegram) generatorReply() string {
	if t.generator == nil {
		return "No generator configured"
	}
	today := t.generator.RuntimeToday() / 3600
	month := t.generator.RuntimeMonth() / 3600
	state := "off"
	if t.generator.Running() {
		state = "running"
	}
	return fmt.Sprintf("⛽ Generator: %s\nToday: %.1f h\nThis month: %.1f h", state, today, month)
}

func (t *Telegram) weatherReply() string {
	if t.weather == nil {
		return "Weather not configured"
	}
	d := t.weather.Latest()
	if d == nil {
		return "No weather data yet"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🌤 %s, %.1f°C\n", d.Description, d.Temperature)
	fmt.Fprintf(&b, "Today: %.0f to %.0f°C, %.1f mm precipitation\n", d.TempMin, d.TempMax, d.Precipitation)
	fmt.Fprintf(&b, "Sun: %s to %s", d.Sunrise.Format("15:04"), d.Sunset.Format("15:04"))
	return b.String()
}
