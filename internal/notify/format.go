package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/predictbase/marketd/internal/domain"
)

// Format renders an event as a chat title and body.
func Format(ev domain.Event) (title, message string) {
	id := ev.MarketID.String()
	str := func(k string) string {
		if v, ok := ev.Data[k]; ok {
			return fmt.Sprint(v)
		}
		return ""
	}
	side := func(k string) string {
		if b, ok := ev.Data[k].(bool); ok {
			return domain.ChoiceLabel(b)
		}
		return str(k)
	}

	switch ev.Type {
	case domain.EventMarketCreated:
		title = "New market #" + id
		lines := []string{str("question")}
		if end, ok := ev.Data["end_time"].(time.Time); ok {
			lines = append(lines, "Closes "+end.UTC().Format(time.RFC1123))
		}
		message = strings.Join(lines, "\n")
	case domain.EventBetPlaced:
		title = "Bet on market #" + id
		message = fmt.Sprintf("%s staked %s on %s", str("user"), str("amount"), side("choice"))
	case domain.EventMarketResolved:
		title = "Market #" + id + " resolved"
		message = "Outcome: " + side("outcome")
	case domain.EventWinningsClaimed:
		title = "Payout on market #" + id
		message = fmt.Sprintf("%s claimed %s", str("user"), str("payout"))
	case domain.EventMarketClosed:
		title = "Market #" + id + " closed"
		message = "Betting has ended and the market awaits resolution."
	case domain.EventMarketArchived:
		title = "Market #" + id + " archived"
		message = "Settlement exported to " + str("path")
	default:
		title = string(ev.Type)
		message = "market #" + id
	}
	return title, message
}
