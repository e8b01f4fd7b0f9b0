package ledger

import (
	"time"

	"github.com/apexnet/apexcore/internal/ids"
	"github.com/apexnet/apexcore/internal/money"
)

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse("2006-01-02T15:04:05.000000000Z07:00", s)
}

func moneyParse(s string) (money.Money, bool) {
	return money.Parse(s)
}

func txID(s string) ids.TxId     { return ids.TxId(s) }
func agentID(s string) ids.AgentId { return ids.AgentId(s) }
