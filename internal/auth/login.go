// Package auth turns wallet signatures into session tokens and session
// tokens back into caller identities.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const loginHeader = "marketd login"

// ErrInvalidLogin is returned for malformed, stale or forged login messages.
var ErrInvalidLogin = errors.New("invalid login")

// LoginMessage is the text a wallet signs to obtain a session.
type LoginMessage struct {
	ChainID   int64
	Address   common.Address
	Timestamp time.Time
}

// String renders the message exactly as it must be signed.
func (m LoginMessage) String() string {
	return fmt.Sprintf("%s\nchain: %d\naddress: %s\ntimestamp: %d",
		loginHeader, m.ChainID, m.Address.Hex(), m.Timestamp.Unix())
}

// ParseLoginMessage parses text produced by LoginMessage.String. Line
// endings may be \n or \r\n.
func ParseLoginMessage(text string) (LoginMessage, error) {
	lines := strings.Split(strings.ReplaceAll(strings.TrimSpace(text), "\r\n", "\n"), "\n")
	if len(lines) != 4 || lines[0] != loginHeader {
		return LoginMessage{}, fmt.Errorf("auth: unrecognised login message: %w", ErrInvalidLogin)
	}

	fields := make(map[string]string, 3)
	for _, line := range lines[1:] {
		k, v, ok := strings.Cut(line, ": ")
		if !ok {
			return LoginMessage{}, fmt.Errorf("auth: malformed line %q: %w", line, ErrInvalidLogin)
		}
		fields[k] = strings.TrimSpace(v)
	}

	var msg LoginMessage
	chainID, err := strconv.ParseInt(fields["chain"], 10, 64)
	if err != nil || chainID <= 0 {
		return LoginMessage{}, fmt.Errorf("auth: bad chain %q: %w", fields["chain"], ErrInvalidLogin)
	}
	msg.ChainID = chainID

	addr := fields["address"]
	if !common.IsHexAddress(addr) {
		return LoginMessage{}, fmt.Errorf("auth: bad address %q: %w", addr, ErrInvalidLogin)
	}
	msg.Address = common.HexToAddress(addr)

	ts, err := strconv.ParseInt(fields["timestamp"], 10, 64)
	if err != nil {
		return LoginMessage{}, fmt.Errorf("auth: bad timestamp %q: %w", fields["timestamp"], ErrInvalidLogin)
	}
	msg.Timestamp = time.Unix(ts, 0).UTC()
	return msg, nil
}
