package market

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gift_sniper/internal/model"
)

// Role distinguishes the two sessions a tenant runs: the scanner session
// streams search results, the buyer session holds the balances and submits
// purchases.
type Role string

const (
	RoleScanner Role = "scanner"
	RoleBuyer   Role = "buyer"
)

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Peer is a resolved purchase destination, cached by the engine so every
// purchase does not pay the resolution round trip.
type Peer struct {
	ID         int64  `json:"id"`
	AccessHash string `json:"accessHash,omitempty"`
}

func (p Peer) IsZero() bool { return p.ID == 0 }

// Client is the marketplace capability the engine consumes. The wire
// protocol behind it is out of scope here; implementations translate
// protocol failures into the typed errors below.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool

	// Me is the cheap liveness probe used by the health supervisor.
	Me(ctx context.Context) (User, error)

	StarsBalance(ctx context.Context) (int64, error)
	TonBalanceNano(ctx context.Context) (int64, error)

	ResolvePeer(ctx context.Context, recipient string) (Peer, error)

	// SearchResale returns up to limit resale offers for one gift kind,
	// cheapest first.
	SearchResale(ctx context.Context, giftID int64, limit int) ([]model.Offer, error)

	// SendResoldGift buys the offer and forwards it to recipient. peer may
	// be zero when resolution failed; implementations then resolve inline.
	SendResoldGift(ctx context.Context, link, recipient string, useTon bool, peer Peer) error
}

// Dialer builds clients. One dialer serves all tenants; each call returns
// an independent session.
type Dialer interface {
	Client(tenant string, role Role, proxy *model.Proxy) Client
}

// RPCError is a typed marketplace failure. Code carries the protocol-level
// error identifier and is what the engine pattern-matches on.
type RPCError struct {
	Code    string
	Message string
}

func (e *RPCError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Well-known purchase rejection codes.
const (
	CodeResaleNotAllowed = "STARGIFT_RESELL_NOT_ALLOWED"
	CodePriceChanged     = "STARS_FORM_AMOUNT_MISMATCH"
	CodeBalanceTooLow    = "BALANCE_TOO_LOW"
	CodeFloodWait        = "FLOOD_WAIT"
)

var ErrNotConnected = errors.New("marketplace session is not connected")

func codeOf(err error) string {
	var rpc *RPCError
	if errors.As(err, &rpc) {
		return rpc.Code
	}
	return ""
}

// IsRejection reports whether err is a marketplace purchase rejection, as
// opposed to a transport-level failure.
func IsRejection(err error) bool {
	return codeOf(err) != ""
}

// UserMessage maps a purchase failure to the templated user-facing line
// shown in the tenant's log.
func UserMessage(err error, link string) string {
	code := codeOf(err)
	switch {
	case strings.Contains(code, CodeResaleNotAllowed):
		return fmt.Sprintf("%s was already bought by someone else", link)
	case strings.Contains(code, CodePriceChanged):
		return fmt.Sprintf("price changed for %s - try again", link)
	case strings.Contains(code, CodeBalanceTooLow):
		return fmt.Sprintf("not enough stars to buy %s", link)
	case strings.Contains(code, CodeFloodWait):
		return "trying too fast - waiting a bit before next try"
	default:
		return fmt.Sprintf("couldn't buy %s (try again)", link)
	}
}
