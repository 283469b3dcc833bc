package model

import (
	"fmt"
	"net/url"
)

// Proxy is one record of the shared egress pool. The JSON field names are
// the on-disk format of the pool file; at most one tenant may hold
// in_use=true for a given (host, port) at a time.
type Proxy struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	InUse    bool   `json:"in_use"`
	UsedBy   string `json:"used_by,omitempty"`
	LastUsed string `json:"last_used,omitempty"`
}

func (p Proxy) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// URL renders the proxy as a socks5 URL suitable for an HTTP client.
func (p Proxy) URL() string {
	u := url.URL{Scheme: "socks5", Host: p.Addr()}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u.String()
}
