package model

import "time"

type Tenant struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	ExpireAt     time.Time `json:"expireAt,omitempty"`
	IsAdmin      bool      `json:"isAdmin"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Settings is one tenant's engine configuration. Ceilings are star prices.
type Settings struct {
	// Recipient is the destination the bought gifts are forwarded to.
	Recipient string `json:"recipient"`
	// DefaultMaxPrice is the ceiling used for gift kinds without an
	// explicit entry in GiftLimits.
	DefaultMaxPrice int64            `json:"defaultMaxPrice"`
	GiftLimits      map[string]int64 `json:"giftLimits,omitempty"`
	// GiftsNotToBuy and BackdropsNotToBuy are case-insensitive substring
	// exclusion lists matched against the gift title and backdrop name.
	GiftsNotToBuy      []string `json:"giftsNotToBuy,omitempty"`
	BackdropsNotToBuy  []string `json:"backdropsNotToBuy,omitempty"`
	SleepBetweenCycles int      `json:"sleepBetweenCycles"`
	NotifyEmail        string   `json:"notifyEmail,omitempty"`
	TelegramChatID     int64    `json:"telegramChatId,omitempty"`
}

func (s Settings) CeilingFor(title string) int64 {
	if limit, ok := s.GiftLimits[title]; ok {
		return limit
	}
	return s.DefaultMaxPrice
}

func (s Settings) SleepInterval() time.Duration {
	if s.SleepBetweenCycles <= 0 {
		return 3 * time.Second
	}
	return time.Duration(s.SleepBetweenCycles) * time.Second
}

func DefaultSettings() Settings {
	return Settings{
		DefaultMaxPrice:    200,
		GiftLimits:         map[string]int64{},
		SleepBetweenCycles: 3,
	}
}
